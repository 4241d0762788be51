// Package pipeline runs a streamscout run as a sequence of steps:
// discovery, concurrent resolution, playlist writing and history
// persistence.
//
// Resolution fans out over a bounded Pool. Each unit creates its own
// browser session and closes it on exit; a failing, hanging or crashing
// unit turns into an Unresolved outcome for its channel only.
package pipeline
