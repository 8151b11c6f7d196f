package database

import "errors"

var (
	// ErrPersonNotFound is returned when an operation references a person
	// that does not exist in the store.
	ErrPersonNotFound = errors.New("person not found")

	// ErrUnavailable wraps connection-level failures where the database
	// could not be reached at all (as opposed to errors the server
	// reported for a single statement). The enrollment saga treats this
	// as fatal and rolls back.
	ErrUnavailable = errors.New("database unavailable")
)
