package playlist

import "errors"

// ErrEmptyResultSet is returned when there is nothing to write. No file is
// created in that case.
var ErrEmptyResultSet = errors.New("no resolved streams to write")
