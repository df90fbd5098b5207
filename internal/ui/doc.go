// Package ui renders the fiscalização dashboard with Bubble Tea.
//
// The screen is a header (identity, connectivity and per-status counts), a
// filter bar, the target table with a detail pane, and a command bar. Targets
// without a team can be selected and assigned to a team through a modal.
//
// The model never calls the state provider from Update. Provider work runs
// inside tea.Cmd functions, and provider snapshots reach the event loop
// through a one-slot feed that keeps only the newest snapshot.
package ui
