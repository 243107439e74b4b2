package diagnostics

import "errors"

var (
	// ErrInvalidDatabase is returned for a compile database that is not a
	// JSON array.
	ErrInvalidDatabase = errors.New("diagnostics: invalid compile database")

	// ErrUserFile is returned when .clangd exists and was not generated by
	// this tool.
	ErrUserFile = errors.New("diagnostics: .clangd was not generated by uebuild")
)
