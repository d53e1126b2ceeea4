package postgres

import (
	"database/sql"

	"github.com/cockroachdb/errors"
	ierr "github.com/flexprice/timeline/internal/errors"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// dbError maps driver errors onto the domain sentinels
func dbError(err error, hint string, details map[string]any) error {
	b := ierr.WithError(err).WithHint(hint)
	if details != nil {
		b = b.WithReportableDetails(details)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return b.Mark(ierr.ErrNotFound)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return b.Mark(ierr.ErrAlreadyExists)
	}
	return b.Mark(ierr.ErrDatabase)
}
