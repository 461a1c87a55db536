// journal/schema.go
package journal

// migration is one schema step. Versions are applied in order, once.
type migration struct {
	version int
	name    string
	sql     string
}

// Decimals are TEXT so balances and prices round-trip exactly.
var migrations = []migration{
	{
		version: 1,
		name:    "accounts_positions_history",
		sql: `
CREATE TABLE accounts (
	username      TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	balance       TEXT NOT NULL,
	strategy      TEXT NOT NULL DEFAULT '',
	avatar        TEXT NOT NULL DEFAULT '',
	bot_enabled   INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL
);

CREATE TABLE positions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	username    TEXT NOT NULL REFERENCES accounts(username),
	symbol      TEXT NOT NULL,
	side        TEXT NOT NULL CHECK (side IN ('LONG', 'SHORT')),
	entry_price TEXT NOT NULL,
	size        TEXT NOT NULL,
	leverage    INTEGER NOT NULL CHECK (leverage >= 1),
	margin      TEXT NOT NULL,
	take_profit TEXT NOT NULL DEFAULT '0',
	stop_loss   TEXT NOT NULL DEFAULT '0',
	opened_at   DATETIME NOT NULL
);

CREATE INDEX idx_positions_username ON positions(username);

CREATE TABLE history (
	entry_id    TEXT PRIMARY KEY,
	time        DATETIME NOT NULL,
	username    TEXT NOT NULL REFERENCES accounts(username),
	position_id INTEGER NOT NULL,
	symbol      TEXT NOT NULL,
	action      TEXT NOT NULL,
	price       TEXT NOT NULL,
	size        TEXT NOT NULL,
	pnl         TEXT
);

CREATE INDEX idx_history_username ON history(username, entry_id);
`,
	},
	{
		version: 2,
		name:    "history_position_index",
		sql:     `CREATE INDEX idx_history_position ON history(position_id);`,
	},
}

const migrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at DATETIME NOT NULL
);
`
