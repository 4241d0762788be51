// Package playlist writes the output of a run.
//
// M3UWriter serializes resolved streams as an extended M3U playlist. The
// summary writers describe a finished run for a terminal (TextWriter),
// for tools (JSONWriter) or for sharing (MarkdownWriter). Summary writers
// implement SummaryWriter so the CLI can pick one at runtime.
package playlist
