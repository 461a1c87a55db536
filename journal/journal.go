// Package journal persists accounts, open positions and the append-only
// trade history in SQLite, and renders history for export.
package journal
