// Package main provides the entry point for the streamscout CLI.
//
// streamscout discovers the channel pages of a live streaming listing site,
// drives a real browser through every channel until the page requests an
// HLS manifest, and writes the manifests it finds to an M3U playlist.
//
// Usage:
//
//	streamscout run
//	streamscout run --category Sports -o sports.m3u
//	streamscout history list
//
// See --help for all available options.
package main

func main() {
	Execute()
}
