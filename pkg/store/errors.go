package store

import (
	"errors"
	"strings"

	"dompet/pkg/apperr"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation recognises duplicate-key failures from gorm's error
// translation, from pgconn, and by message as a last resort.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint")
}

// translate maps driver errors onto apperr kinds.
func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperr.NotFound(what + " not found")
	case IsUniqueViolation(err):
		return &apperr.Error{Kind: apperr.KindConflict, Message: what + " already exists", Err: err}
	}
	return apperr.Internal(what+" query failed", err)
}
