/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"context"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// ErrorClass groups driver errors for metrics and domain mapping.
type ErrorClass string

const (
	ErrorClassNone         ErrorClass = ""
	ErrorClassDuplicateKey ErrorClass = "duplicate_key"
	ErrorClassCheck        ErrorClass = "check_violation"
	ErrorClassForeignKey   ErrorClass = "foreign_key"
	ErrorClassTimeout      ErrorClass = "timeout"
	ErrorClassCanceled     ErrorClass = "canceled"
	ErrorClassQuery        ErrorClass = "query_error"
)

// Classify maps an error from any supported backend to an ErrorClass.
// Record-not-found is not an error here.
func Classify(err error) ErrorClass {
	if err == nil || errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorClassNone
	}

	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrorClassDuplicateKey
	case errors.Is(err, gorm.ErrCheckConstraintViolated):
		return ErrorClassCheck
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return ErrorClassForeignKey
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorClassTimeout
	case errors.Is(err, context.Canceled):
		return ErrorClassCanceled
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return ErrorClassDuplicateKey
		case "23503":
			return ErrorClassForeignKey
		case "23514", "23P01":
			return ErrorClassCheck
		case "57014":
			return ErrorClassTimeout
		}
		return ErrorClassQuery
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1062:
			return ErrorClassDuplicateKey
		case 1451, 1452:
			return ErrorClassForeignKey
		case 3819:
			return ErrorClassCheck
		}
		return ErrorClassQuery
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) && liteErr.Code == sqlite3.ErrConstraint {
		switch liteErr.ExtendedCode {
		case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
			return ErrorClassDuplicateKey
		case sqlite3.ErrConstraintForeignKey:
			return ErrorClassForeignKey
		case sqlite3.ErrConstraintCheck, sqlite3.ErrConstraintTrigger:
			return ErrorClassCheck
		}
		return ErrorClassQuery
	}

	return ErrorClassQuery
}

// IsCheckViolation reports whether err is a rejected CHECK or trigger guard.
func IsCheckViolation(err error) bool {
	return Classify(err) == ErrorClassCheck
}

// IsDuplicateKey reports whether err is a unique index violation.
func IsDuplicateKey(err error) bool {
	return Classify(err) == ErrorClassDuplicateKey
}
