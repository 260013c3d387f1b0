package scraper

import (
	"time"

	"go.uber.org/zap"

	apperrors "bankfeed/internal/errors"
	"bankfeed/internal/normalize"
)

// pageFunc loads one more page of raw portal rows. section identifies the
// portal view the page belongs to: rows are newest-first within a section,
// but one bank may chain several sections (bank account, then virtual
// card) into the sequence. Called lazily as the sequence is consumed; a
// nil error with no rows and no more pages ends the sequence.
type pageFunc func() (rows []normalize.RawRow, section int, more bool, err error)

// rowStream turns paginated page loads into the lazy row sequence the
// contract requires, applying the date window and the bounded row-failure
// policy that are common to every bank.
type rowStream struct {
	nextPage pageFunc
	from     *time.Time
	to       *time.Time
	log      *zap.SugaredLogger

	buf      []normalize.RawRow
	i        int
	section  int
	more     bool
	yielded  int
	failures int
	done     bool

	// cutSection marks a section whose remaining rows precede the window
	// start; its pages are skipped without ending later sections.
	cut        bool
	cutSection int
}

// newRowStream builds the sequence. from, when set, stops each section at
// its first row preceding it; to, when set, filters rows after it.
func newRowStream(nextPage pageFunc, from, to *time.Time, log *zap.SugaredLogger) *normalize.Rows {
	s := &rowStream{nextPage: nextPage, from: from, to: to, log: log, more: true}
	return normalize.NewRows(s.next)
}

func (s *rowStream) next() (normalize.RawRow, bool, error) {
	for {
		if s.done {
			return nil, false, nil
		}
		if s.i >= len(s.buf) {
			if !s.more {
				s.done = true
				return nil, false, nil
			}
			rows, section, more, err := s.nextPage()
			if err != nil {
				s.done = true
				return nil, false, err
			}
			s.buf, s.i, s.section, s.more = rows, 0, section, more
			if len(rows) == 0 && !more {
				s.done = true
				return nil, false, nil
			}
			continue
		}

		if s.cut && s.section == s.cutSection {
			// The rest of this section is older than the window.
			s.i = len(s.buf)
			continue
		}

		row := s.buf[s.i]
		s.i++

		date, err := normalize.ParseDate(row[normalize.KeyDate])
		if err != nil {
			s.failures++
			s.log.Warnw("skipping malformed row", "error", err, "row", row)
			if s.failures >= maxConsecutiveRowFailures {
				s.done = true
				return nil, false, &apperrors.ExtractionError{RowsYielded: s.yielded, Internal: err}
			}
			continue
		}
		s.failures = 0

		// Sections list newest first; the first row older than the window
		// start means every remaining row of this section is older too.
		// Later sections start fresh from their own newest row.
		if s.from != nil && date.Before(*s.from) {
			s.cut, s.cutSection = true, s.section
			s.i = len(s.buf)
			continue
		}
		if s.to != nil && date.After(*s.to) {
			continue
		}

		s.yielded++
		return row, true, nil
	}
}

// reachedWindowStart reports whether a section's oldest rendered row
// already precedes the window start, so loading more history is pointless.
func reachedWindowStart(rows []normalize.RawRow, from *time.Time) bool {
	if from == nil {
		return false
	}
	for i := len(rows) - 1; i >= 0; i-- {
		date, err := normalize.ParseDate(rows[i][normalize.KeyDate])
		if err != nil {
			continue
		}
		return date.Before(*from)
	}
	return false
}
