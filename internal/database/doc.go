// Package database provides SQLite-based storage for audit run history.
//
// This package implements the RunDB, which stores:
//   - Completed audit reports as JSON for later export and comparison
//   - Per-run metadata rows (score, status, dataset fingerprint) so
//     history listings never decode full reports
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the history is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
package database
