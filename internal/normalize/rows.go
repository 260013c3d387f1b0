package normalize

// RawRow is one untyped key/value record as scraped or read from a file row.
// Transient; it exists only between extraction and normalization.
type RawRow map[string]string

// Well-known RawRow keys. Extractors populate these; bank-specific columns
// are mapped onto them at the extraction boundary.
const (
	KeyDate        = "date"
	KeyDescription = "description"
	KeyAmount      = "amount"
	KeyBalance     = "balance"
	KeyCategory    = "category"
	KeyAccountType = "account_type"
)

// Rows is a lazy, finite, non-restartable sequence of raw rows. Pagination
// and file reads happen inside the fetch function as the sequence is
// consumed. Usage follows sql.Rows:
//
//	for rows.Next() {
//	    row := rows.Row()
//	    ...
//	}
//	if err := rows.Err(); err != nil { ... }
//
// A non-nil Err after exhaustion means the sequence terminated early; the
// rows already yielded remain valid partial results.
type Rows struct {
	fetch   func() (RawRow, bool, error)
	row     RawRow
	err     error
	done    bool
	yielded int
}

// NewRows builds a sequence from a fetch function. fetch returns the next
// row and true, or false when the sequence is exhausted, or an error to
// terminate it.
func NewRows(fetch func() (RawRow, bool, error)) *Rows {
	return &Rows{fetch: fetch}
}

// RowsFromSlice builds a sequence over already-materialized rows.
func RowsFromSlice(rows []RawRow) *Rows {
	i := 0
	return NewRows(func() (RawRow, bool, error) {
		if i >= len(rows) {
			return nil, false, nil
		}
		row := rows[i]
		i++
		return row, true, nil
	})
}

// Next advances to the next row. It returns false at exhaustion or on a
// terminal error; check Err afterwards.
func (r *Rows) Next() bool {
	if r.done {
		return false
	}
	row, ok, err := r.fetch()
	if err != nil {
		r.err = err
		r.done = true
		return false
	}
	if !ok {
		r.done = true
		return false
	}
	r.row = row
	r.yielded++
	return true
}

// Row returns the current row. Only valid after a true Next.
func (r *Rows) Row() RawRow { return r.row }

// Err returns the error that terminated the sequence, if any.
func (r *Rows) Err() error { return r.err }

// Yielded returns how many rows have been produced so far.
func (r *Rows) Yielded() int { return r.yielded }
