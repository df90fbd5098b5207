// Package app is the composition root of fiscal.
//
// Bootstrap loads the configuration and opens the local services every
// command needs: the rotating log, the session file, the SQLite cache and
// the API client. A cache that cannot be opened is replaced by a disabled
// store so the client still works online.
//
// Env.Start adds the live pieces used by the TUI:
//
//   - state.Provider, hydrated from the cache and fetching from the API
//   - netwatch.Monitor, whose restored events trigger Provider.HandleOnline
//   - a session file watcher that forwards login and logout to the provider
//
// Run wires those into the Bubble Tea UI and blocks until it exits.
package app
