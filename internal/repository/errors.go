// internal/repository/errors.go
package repository

import (
	"context"
	"database/sql/driver"
	"errors"
	"strings"

	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/javajoker/imi-licensing/internal/apperrors"
)

var domainKinds = []error{
	apperrors.ErrValidation,
	apperrors.ErrNotFound,
	apperrors.ErrPermission,
	apperrors.ErrConflict,
	apperrors.ErrConsistency,
	apperrors.ErrStore,
}

func isDomain(err error) bool {
	for _, kind := range domainKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// classify maps a gorm or driver error onto the engine's error kinds.
func classify(op, resource string, id interface{}, err error) error {
	if err == nil || isDomain(err) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperrors.NotFound(resource, id)
	case isDuplicate(err):
		return apperrors.Conflict(resource + " violates a uniqueness constraint")
	case isRetryable(err):
		return apperrors.Store(op, true, err)
	}
	return apperrors.Store(op, false, err)
}

// pq error classes, see https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pqUniqueViolation      = "23505"
	pqSerializationFailure = "40001"
	pqDeadlockDetected     = "40P01"
)

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqUniqueViolation
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}

func isRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == pqSerializationFailure || pqErr.Code == pqDeadlockDetected ||
			pqErr.Code.Class() == "08" // connection_exception
	}
	msg := err.Error()
	for _, marker := range []string{
		"SQLSTATE 40001", // serialization_failure
		"SQLSTATE 40P01", // deadlock_detected
		"database is locked",
		"database table is locked",
		"connection refused",
		"connection reset",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
