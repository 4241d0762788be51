// Package model defines the core data structures used throughout streamscout.
//
// This package contains the following main types:
//   - Channel: a discovered channel page
//   - StreamResult: a resolved manifest URL for one channel
//   - ResultSet: the concurrency-safe collection of results
//   - Run: the state of one discovery-and-resolution run
//
// The models are serializable to JSON for summaries and are stored in the
// history database.
package model
