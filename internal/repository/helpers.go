package repository

import (
	"database/sql"
	"errors"
)

// optional maps sql.ErrNoRows to (nil, nil). Find* methods report a missing
// row as a nil result and leave the not-found decision to the service.
func optional[T any](row *T, err error) (*T, error) {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	case err != nil:
		return nil, err
	default:
		return row, nil
	}
}
