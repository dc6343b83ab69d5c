package repositories

import (
	"errors"

	"github.com/mattn/go-sqlite3"
)

// ErrDuplicate is returned when an insert hits a unique constraint,
// meaning another writer already created the row.
var ErrDuplicate = errors.New("record already exists")

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// mapInsertError converts unique-constraint violations into ErrDuplicate
func mapInsertError(err error) error {
	if err == nil {
		return nil
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) &&
		(sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return ErrDuplicate
	}
	return err
}
