// Package browser drives isolated headless browser sessions.
//
// A Session wraps one browser instance with one tab. It exposes the
// capabilities channel discovery and stream resolution need: navigation,
// element lookup by Locator, script execution, frame scoping, rendered
// source retrieval and a per-session log of network requests.
//
// Launcher is the chromedp-backed Factory used in production. Package
// browsertest provides an in-memory Session for tests.
package browser
