// Package log builds the slog loggers used by streamscout.
//
// SecureHandler wraps any slog.Handler and redacts values before they are
// written:
//   - attributes whose key names a credential (cookie, authorization,
//     proxy-password, ...) are replaced entirely;
//   - values that look like bearer tokens, JWTs or private keys are replaced;
//   - signed stream URLs keep their host and path, but the values of signing
//     query parameters (token, sig, expires, hdnts, ...) are masked.
//
// Manifest URLs are logged at Info level on every resolution, so the last
// rule applies to plain strings, to strings inside groups and to error
// messages alike.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Info("manifest found", "manifest", "https://cdn.example/live.m3u8?token=abc")
//	// manifest=https://cdn.example/live.m3u8?token=***REDACTED***
package log
