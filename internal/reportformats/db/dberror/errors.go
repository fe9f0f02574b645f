package dberror

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/jackc/pgconn"
	"github.com/tansive/reportformatsrv/internal/common/apperrors"
)

var (
	ErrDatabase      apperrors.Error = apperrors.New("db error").SetStatusCode(http.StatusInternalServerError)
	ErrAlreadyExists apperrors.Error = ErrDatabase.New("already exists").SetStatusCode(http.StatusConflict)
	ErrNotFound      apperrors.Error = ErrDatabase.New("not found").SetStatusCode(http.StatusNotFound)
	ErrInvalidInput  apperrors.Error = ErrDatabase.New("invalid input").SetStatusCode(http.StatusBadRequest)
	ErrMigration     apperrors.Error = ErrDatabase.New("migration failed")
	ErrConnect       apperrors.Error = ErrDatabase.New("unable to connect to database").SetStatusCode(http.StatusServiceUnavailable)
)

const pgUniqueViolation = "23505"

// FromDriver maps a driver error to a dberror sentinel wrapping the original.
func FromDriver(err error) apperrors.Error {
	if err == nil {
		return nil
	}
	if appErr, ok := err.(apperrors.Error); ok {
		return appErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound.Err(err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrAlreadyExists.Err(err)
	}
	return ErrDatabase.Err(err)
}
