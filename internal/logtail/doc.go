// Package logtail reads the tail of the fiscal log file and renders its
// JSON lines for the terminal.
//
// Read uses a ring buffer so only maxLines are held in memory regardless of
// file size. A missing file is not an error and yields no lines.
//
// FormatLine turns a zerolog JSON line into
//
//	2006-01-02 15:04:05 LEVEL message – key=value ... error=...
//
// with extra fields sorted by key. Non-JSON lines pass through unchanged.
package logtail
