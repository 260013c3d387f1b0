package fileimport

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	apperrors "bankfeed/internal/errors"
	"bankfeed/internal/models"
	"bankfeed/internal/normalize"
)

// File is one statement export resolved from its filename: which bank
// produced it and which of the bank's accounts it belongs to.
type File struct {
	Path        string
	Bank        string
	AccountType models.AccountType
}

// importBanks are matched against filenames, longest first so "santander"
// is not shadowed by shorter names.
var importBanks = []string{"santander", "ruralvia", "caixa", "bbva"}

// Detect resolves a statement file's bank and account type from its name,
// the convention the export scripts follow: the bank name appears in the
// filename, and virtual card exports carry "virtual".
func Detect(path string) (File, error) {
	name := strings.ToLower(filepath.Base(path))
	for _, bank := range importBanks {
		if !strings.Contains(name, bank) {
			continue
		}
		accountType := models.AccountTypeBankID
		if strings.Contains(name, "virtual") {
			accountType = models.AccountTypeVirtualID
		}
		return File{Path: path, Bank: bank, AccountType: accountType}, nil
	}
	return File{}, apperrors.WithMessage(apperrors.ErrInvalidInput,
		fmt.Sprintf("cannot tell which bank %q belongs to", filepath.Base(path)))
}

// ScanDir lists the importable statement files in a directory, skipping
// files whose bank cannot be determined.
func ScanDir(dir string, log *zap.SugaredLogger) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []File
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(strings.ToLower(entry.Name()), ".csv") {
			continue
		}
		file, err := Detect(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Warnw("skipping unrecognized export file", "file", entry.Name())
			continue
		}
		files = append(files, file)
	}
	return files, nil
}

// Open reads a statement file as a lazy row sequence. The file handle is
// closed when the sequence is exhausted or terminates.
func Open(file File, log *zap.SugaredLogger) (*normalize.Rows, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return nil, err
	}
	rows, err := Read(f, file.AccountType, log)
	if err != nil {
		f.Close()
		return nil, err
	}
	return wrapClose(rows, f), nil
}

// Read parses a statement export from a reader. The separator (comma or
// semicolon) is sniffed from the header line and the layout detected from
// the header columns.
func Read(r io.Reader, accountType models.AccountType, log *zap.SugaredLogger) (*normalize.Rows, error) {
	buffered := bufio.NewReader(r)
	sep, err := sniffSeparator(buffered)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err)
	}

	reader := csv.NewReader(buffered)
	reader.Comma = sep
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidInput, err)
	}
	layout := detectLayout(header)
	if layout == nil {
		return nil, apperrors.WithMessage(apperrors.ErrInvalidInput,
			fmt.Sprintf("unrecognized export layout, header: %v", header))
	}
	log.Debugw("detected export layout", "layout", layout.Name)

	failures := 0
	yielded := 0
	fetch := func() (normalize.RawRow, bool, error) {
		for {
			record, err := reader.Read()
			if err == io.EOF {
				return nil, false, nil
			}
			if err != nil {
				failures++
				log.Warnw("skipping unreadable record", "error", err)
				if failures >= maxConsecutiveRecordFailures {
					return nil, false, &apperrors.ExtractionError{RowsYielded: yielded, Internal: err}
				}
				continue
			}
			failures = 0
			row := layout.buildRow(header, record)
			row[normalize.KeyAccountType] = string(accountType)
			yielded++
			return row, true, nil
		}
	}
	return normalize.NewRows(fetch), nil
}

// maxConsecutiveRecordFailures bounds how many unreadable records in a row
// the import tolerates before giving up on the file.
const maxConsecutiveRecordFailures = 3

// sniffSeparator looks at the header line: CaixaBank exports use
// semicolons, everything else commas.
func sniffSeparator(r *bufio.Reader) (rune, error) {
	peek, err := r.Peek(4096)
	if err != nil && err != io.EOF {
		return 0, err
	}
	line := string(peek)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if strings.Count(line, ";") > strings.Count(line, ",") {
		return ';', nil
	}
	return ',', nil
}

// wrapClose closes c when the sequence ends.
func wrapClose(rows *normalize.Rows, c io.Closer) *normalize.Rows {
	closed := false
	return normalize.NewRows(func() (normalize.RawRow, bool, error) {
		if closed {
			return nil, false, nil
		}
		if rows.Next() {
			return rows.Row(), true, nil
		}
		closed = true
		c.Close()
		return nil, false, rows.Err()
	})
}
