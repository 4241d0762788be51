// Package resolver finds the live manifest URL behind one channel page.
//
// Resolution is a small state machine:
//
//	Init -> PageLoaded -> [FrameEntered] -> PlaybackTriggered -> Sniffing -> Resolved | Unresolved
//
// After the page loads the first embedded frame is entered and an ordered
// list of playback triggers runs until one succeeds. The session network log
// is then polled for manifest requests. When the network shows nothing, an
// ordered list of extractors inspects the rendered document.
//
// Finding nothing is a normal outcome: Resolve reports it as Unresolved
// without an error.
package resolver
