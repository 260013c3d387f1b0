// Package fileimport reads manually exported bank statement files and feeds
// them into the same normalize/categorize/reconcile path the scrapers use.
// Each bank exports a different column layout; the layout is detected from
// the header row, and the file's bank and account type from its name.
package fileimport

import (
	"strings"

	"bankfeed/internal/normalize"
)

// Layout describes one bank export format: which source column feeds which
// canonical row key, plus the bank's description merge quirks.
type Layout struct {
	Name    string
	columns map[string]string

	// mergeMerchant appends the merchant column to the description
	// ("concepto - comercio"), as the Ruralvia virtual card export splits
	// them.
	mergeMerchant bool

	// mergeMoreInfo appends the extended concept to the description unless
	// it is boilerplate; BBVA exports carry the actual merchant there.
	mergeMoreInfo bool
}

const (
	colMerchant = "merchant"
	colMoreInfo = "more_info"
)

// excludedMoreInfo values add nothing over the concept column and are
// dropped instead of merged.
var excludedMoreInfo = map[string]bool{
	"":                 true,
	"PAGO CON TARJETA": true,
}

var layouts = []Layout{
	{
		Name: "ruralvia-virtual",
		columns: map[string]string{
			"Fecha del movimiento": normalize.KeyDate,
			"Concepto":             normalize.KeyDescription,
			"Importe":              normalize.KeyAmount,
			"Comercio":             colMerchant,
		},
		mergeMerchant: true,
	},
	{
		Name: "ruralvia",
		columns: map[string]string{
			"Fecha Ejecución": normalize.KeyDate,
			"Descripcion":     normalize.KeyDescription,
			"Importe":         normalize.KeyAmount,
			"Saldo":           normalize.KeyBalance,
		},
	},
	{
		Name: "santander",
		columns: map[string]string{
			"FECHA OPERACIÓN": normalize.KeyDate,
			"CONCEPTO":        normalize.KeyDescription,
			"IMPORTE EUR":     normalize.KeyAmount,
			"SALDO":           normalize.KeyBalance,
		},
	},
	{
		Name: "bbva-extended",
		columns: map[string]string{
			"date":        normalize.KeyDate,
			"description": normalize.KeyDescription,
			"more_info":   colMoreInfo,
			"category":    normalize.KeyCategory,
			"amount":      normalize.KeyAmount,
			"balance":     normalize.KeyBalance,
		},
		mergeMoreInfo: true,
	},
	{
		Name: "bbva",
		columns: map[string]string{
			"Fecha":      normalize.KeyDate,
			"Concepto":   normalize.KeyDescription,
			"Importe":    normalize.KeyAmount,
			"Disponible": normalize.KeyBalance,
		},
	},
}

// detectLayout picks the layout whose signature column appears in the
// header. Order matters: the extended BBVA format is recognized by its
// more_info column before falling through to the plain one.
func detectLayout(header []string) *Layout {
	have := make(map[string]bool, len(header))
	for _, col := range header {
		have[strings.TrimSpace(col)] = true
	}
	switch {
	case have["Fecha del movimiento"]:
		return &layouts[0]
	case have["Fecha Ejecución"]:
		return &layouts[1]
	case have["FECHA OPERACIÓN"]:
		return &layouts[2]
	case have["more_info"]:
		return &layouts[3]
	case have["Fecha"]:
		return &layouts[4]
	default:
		return nil
	}
}

// buildRow maps one CSV record onto a canonical raw row and applies the
// layout's description merges.
func (l *Layout) buildRow(header, record []string) normalize.RawRow {
	row := make(normalize.RawRow, len(l.columns))
	for i, col := range header {
		key, ok := l.columns[strings.TrimSpace(col)]
		if !ok || i >= len(record) {
			continue
		}
		row[key] = strings.TrimSpace(record[i])
	}

	if l.mergeMerchant {
		if merchant := row[colMerchant]; merchant != "" {
			row[normalize.KeyDescription] = row[normalize.KeyDescription] + " - " + merchant
		}
		delete(row, colMerchant)
	}
	if l.mergeMoreInfo {
		more := strings.TrimSpace(row[colMoreInfo])
		if !excludedMoreInfo[strings.ToUpper(more)] {
			row[normalize.KeyDescription] = strings.TrimSpace(row[normalize.KeyDescription] + " " + more)
		}
		delete(row, colMoreInfo)
	}
	return row
}
