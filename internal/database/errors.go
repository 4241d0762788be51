package database

import "errors"

var (
	// ErrDatabaseNotFound is returned when the database must already exist.
	ErrDatabaseNotFound = errors.New("history database not found")

	// ErrAmbiguousRunID is returned when a run ID prefix matches more than one run.
	ErrAmbiguousRunID = errors.New("run ID prefix matches more than one run")
)
