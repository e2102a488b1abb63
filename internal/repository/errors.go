package repository

import "errors"

// ErrNotFound is returned when a query for a single entity finds no rows.
// The service layer translates it into the domain-level sentinel, keeping
// business logic decoupled from the database driver's error values.
var ErrNotFound = errors.New("repository: not found")
