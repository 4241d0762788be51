package discovery

import "errors"

var (
	// ErrNavigationFailure is returned when the listing page or its channel
	// grid could not be reached. The run cannot continue.
	ErrNavigationFailure = errors.New("discovery navigation failed")

	// ErrEmptyResult is returned when no channel survived extraction.
	ErrEmptyResult = errors.New("no channels discovered")

	// ErrFilterApplication reports that the category filter could not be
	// applied. It is logged, never returned.
	ErrFilterApplication = errors.New("category filter could not be applied")
)
