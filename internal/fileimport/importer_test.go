package fileimport

import (
	"errors"
	"strings"
	"testing"

	"go.uber.org/zap"

	apperrors "bankfeed/internal/errors"
	"bankfeed/internal/models"
	"bankfeed/internal/normalize"
	"bankfeed/internal/testutil"
)

func readAll(t *testing.T, rows *normalize.Rows) []normalize.RawRow {
	t.Helper()
	var out []normalize.RawRow
	for rows.Next() {
		out = append(out, rows.Row())
	}
	testutil.AssertNoError(t, rows.Err())
	return out
}

func testLog() *zap.SugaredLogger { return zap.NewNop().Sugar() }

func TestDetect(t *testing.T) {
	tests := []struct {
		name        string
		filename    string
		bank        string
		accountType models.AccountType
		wantErr     bool
	}{
		{"bbva_account", "20250611_bbva_cuentas_ES80.csv", "bbva", models.AccountTypeBankID, false},
		{"bbva_virtual_card", "bbva_virtual_2024.csv", "bbva", models.AccountTypeVirtualID, false},
		{"ruralvia", "ruralvia_enero.csv", "ruralvia", models.AccountTypeBankID, false},
		{"ruralvia_virtual", "RURALVIA_VIRTUAL.csv", "ruralvia", models.AccountTypeVirtualID, false},
		{"santander", "export_santander.csv", "santander", models.AccountTypeBankID, false},
		{"unknown_bank", "monzo_export.csv", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, err := Detect(tt.filename)
			if tt.wantErr {
				testutil.AssertAppError(t, err, "INVALID_INPUT")
				return
			}
			testutil.AssertNoError(t, err)
			if file.Bank != tt.bank {
				t.Errorf("expected bank %s, got %s", tt.bank, file.Bank)
			}
			if file.AccountType != tt.accountType {
				t.Errorf("expected account type %s, got %s", tt.accountType, file.AccountType)
			}
		})
	}
}

func TestRead(t *testing.T) {
	t.Run("ruralvia_layout", func(t *testing.T) {
		input := "Fecha Ejecución,Descripcion,Importe,Saldo\n" +
			"01/03/2026,TRANSFERENCIA RECIBIDA,\"1.500,00\",\"2.000,00\"\n" +
			"02/03/2026,RECIBO LUZ,\"-80,50\",\"1.919,50\"\n"
		rows, err := Read(strings.NewReader(input), models.AccountTypeBankID, testLog())
		testutil.AssertNoError(t, err)

		got := readAll(t, rows)
		if len(got) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(got))
		}
		first := got[0]
		if first[normalize.KeyDate] != "01/03/2026" || first[normalize.KeyDescription] != "TRANSFERENCIA RECIBIDA" {
			t.Errorf("columns were not mapped: %v", first)
		}
		if first[normalize.KeyAmount] != "1.500,00" || first[normalize.KeyBalance] != "2.000,00" {
			t.Errorf("amount/balance were not mapped: %v", first)
		}
		if first[normalize.KeyAccountType] != string(models.AccountTypeBankID) {
			t.Errorf("account type missing: %v", first)
		}
	})

	t.Run("ruralvia_virtual_merges_merchant", func(t *testing.T) {
		input := "Fecha del movimiento,Concepto,Importe,Comercio\n" +
			"01/03/2026,COMPRA,\"-12,50\",AMAZON\n" +
			"02/03/2026,COMPRA,\"-8,00\",\n"
		rows, err := Read(strings.NewReader(input), models.AccountTypeVirtualID, testLog())
		testutil.AssertNoError(t, err)

		got := readAll(t, rows)
		if got[0][normalize.KeyDescription] != "COMPRA - AMAZON" {
			t.Errorf("merchant was not merged: %q", got[0][normalize.KeyDescription])
		}
		if got[1][normalize.KeyDescription] != "COMPRA" {
			t.Errorf("empty merchant must not be merged: %q", got[1][normalize.KeyDescription])
		}
		if _, ok := got[0][colMerchant]; ok {
			t.Error("merchant column must not survive the merge")
		}
	})

	t.Run("santander_layout", func(t *testing.T) {
		input := "FECHA OPERACIÓN,CONCEPTO,IMPORTE EUR,SALDO\n" +
			"01/03/2026,BIZUM ENVIADO,\"-25,00\",\"500,00\"\n"
		rows, err := Read(strings.NewReader(input), models.AccountTypeBankID, testLog())
		testutil.AssertNoError(t, err)

		got := readAll(t, rows)
		if len(got) != 1 || got[0][normalize.KeyDescription] != "BIZUM ENVIADO" {
			t.Errorf("santander columns were not mapped: %v", got)
		}
	})

	t.Run("bbva_extended_merges_more_info", func(t *testing.T) {
		input := "date,description,more_info,category,amount,balance\n" +
			"2026-03-01 10:00:00,compra tarjeta,mercadona valencia,supermercados,-12.50,1000.00\n" +
			"2026-03-02 11:00:00,compra tarjeta,PAGO CON TARJETA,supermercados,-8.00,992.00\n" +
			"2026-03-03 12:00:00,recibo,,hogar,-60.00,932.00\n"
		rows, err := Read(strings.NewReader(input), models.AccountTypeBankID, testLog())
		testutil.AssertNoError(t, err)

		got := readAll(t, rows)
		if got[0][normalize.KeyDescription] != "compra tarjeta mercadona valencia" {
			t.Errorf("more_info was not merged: %q", got[0][normalize.KeyDescription])
		}
		if got[1][normalize.KeyDescription] != "compra tarjeta" {
			t.Errorf("boilerplate more_info must be dropped: %q", got[1][normalize.KeyDescription])
		}
		if got[2][normalize.KeyDescription] != "recibo" {
			t.Errorf("empty more_info must be dropped: %q", got[2][normalize.KeyDescription])
		}
		if got[0][normalize.KeyCategory] != "supermercados" {
			t.Errorf("category column was not mapped: %v", got[0])
		}
	})

	t.Run("bbva_default_layout", func(t *testing.T) {
		input := "Fecha,Concepto,Importe,Disponible\n" +
			"01/03/2026,NOMINA,\"1.800,00\",\"2.500,00\"\n"
		rows, err := Read(strings.NewReader(input), models.AccountTypeBankID, testLog())
		testutil.AssertNoError(t, err)

		got := readAll(t, rows)
		if got[0][normalize.KeyBalance] != "2.500,00" {
			t.Errorf("Disponible should feed the balance: %v", got[0])
		}
	})

	t.Run("semicolon_separated_export", func(t *testing.T) {
		input := "Fecha Ejecución;Descripcion;Importe;Saldo\n" +
			"01/03/2026;TRANSFERENCIA;1500,00;2000,00\n"
		rows, err := Read(strings.NewReader(input), models.AccountTypeBankID, testLog())
		testutil.AssertNoError(t, err)

		got := readAll(t, rows)
		if len(got) != 1 || got[0][normalize.KeyAmount] != "1500,00" {
			t.Errorf("semicolon export was not parsed: %v", got)
		}
	})

	t.Run("unrecognized_layout_is_rejected", func(t *testing.T) {
		input := "colA,colB\n1,2\n"
		_, err := Read(strings.NewReader(input), models.AccountTypeBankID, testLog())
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})

	t.Run("empty_input_is_rejected", func(t *testing.T) {
		_, err := Read(strings.NewReader(""), models.AccountTypeBankID, testLog())
		testutil.AssertAppError(t, err, "INVALID_INPUT")
	})
}

func TestReadPartialFailure(t *testing.T) {
	t.Run("repeated_bad_records_abort_with_count", func(t *testing.T) {
		// Bare quotes make each of these records unreadable at the CSV
		// level, one line at a time.
		input := "Fecha,Concepto,Importe,Disponible\n" +
			"01/03/2026,GOOD,\"-1,00\",\"100,00\"\n" +
			"02/03/2026,BA\"D,-2,0\n" +
			"03/03/2026,BA\"D,-3,0\n" +
			"04/03/2026,BA\"D,-4,0\n" +
			"05/03/2026,NEVER REACHED,\"-5,00\",\"0,00\"\n"
		rows, err := Read(strings.NewReader(input), models.AccountTypeBankID, testLog())
		testutil.AssertNoError(t, err)

		count := 0
		for rows.Next() {
			count++
		}
		var extractionErr *apperrors.ExtractionError
		if !errors.As(rows.Err(), &extractionErr) {
			t.Fatalf("expected ExtractionError, got %v", rows.Err())
		}
		if count != 1 {
			t.Errorf("expected 1 good row before the abort, got %d", count)
		}
		if extractionErr.RowsYielded != count {
			t.Errorf("reported %d yielded rows, iterator produced %d", extractionErr.RowsYielded, count)
		}
	})
}
