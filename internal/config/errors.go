package config

import "errors"

// Configuration validation errors returned by Config.Validate().
var (
	// ErrNoBaseURL is returned when no listing site URL is configured.
	ErrNoBaseURL = errors.New("no base URL specified: provide a listing site URL with --base-url")

	// ErrInvalidBaseURL is returned when the base URL is not an absolute http(s) URL.
	ErrInvalidBaseURL = errors.New("invalid base URL: must be an absolute http or https URL")

	// ErrInvalidPoolWidth is returned when the worker pool width is less than one.
	ErrInvalidPoolWidth = errors.New("invalid pool width: must be at least 1")

	// ErrInvalidTimeout is returned when a wait, operation, channel or run timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidSettle is returned when a settle delay is negative.
	ErrInvalidSettle = errors.New("invalid settle delay: must be non-negative")

	// ErrInvalidSniffBudget is returned when the sniff budget or poll interval is not
	// positive, or when the interval exceeds the budget.
	ErrInvalidSniffBudget = errors.New("invalid sniff budget: budget and interval must be positive and interval must not exceed budget")

	// ErrConflictingEgress is returned when both --proxy and --tor are specified.
	ErrConflictingEgress = errors.New("conflicting egress options: --proxy and --tor cannot be used together")

	// ErrConflictingSummaryFormats is returned when both --json and --markdown
	// are specified.
	ErrConflictingSummaryFormats = errors.New("conflicting summary formats: --json and --markdown cannot be used together")

	// ErrNoOutputFile is returned when the playlist output path is empty.
	ErrNoOutputFile = errors.New("no output file specified: provide a playlist path with --output")
)
