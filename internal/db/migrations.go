package db

// Amounts are 256-bit unsigned integers stored as decimal TEXT.
// Times are unix milliseconds.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS ledger_state (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    market_count INTEGER NOT NULL DEFAULT 0,
    fee_rate_bps INTEGER NOT NULL,
    held TEXT NOT NULL DEFAULT '0',
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS markets (
    id INTEGER PRIMARY KEY,
    title TEXT NOT NULL,
    created_at INTEGER NOT NULL,
    ends_at INTEGER NOT NULL,
    confidence INTEGER NOT NULL CHECK (confidence BETWEEN 0 AND 100),
    resolved INTEGER NOT NULL DEFAULT 0,
    outcome TEXT,
    total_with TEXT NOT NULL DEFAULT '0',
    total_against TEXT NOT NULL DEFAULT '0',
    resolved_at TEXT
);

CREATE TABLE IF NOT EXISTS stakes (
    market_id INTEGER NOT NULL REFERENCES markets(id),
    participant TEXT NOT NULL,
    side TEXT NOT NULL CHECK (side IN ('with', 'against')),
    amount TEXT NOT NULL,
    PRIMARY KEY (market_id, participant, side)
);

CREATE TABLE IF NOT EXISTS claims (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    market_id INTEGER NOT NULL REFERENCES markets(id),
    claimant TEXT NOT NULL,
    side TEXT NOT NULL,
    amount TEXT NOT NULL,
    claimed_at TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_claims_market ON claims(market_id);

CREATE TABLE IF NOT EXISTS ledger_events (
    id TEXT PRIMARY KEY,
    seq INTEGER NOT NULL UNIQUE,
    kind TEXT NOT NULL,
    market_id INTEGER,
    payload TEXT NOT NULL,
    occurred_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_market ON ledger_events(market_id);

CREATE TABLE IF NOT EXISTS accounts (
    address TEXT PRIMARY KEY,
    balance TEXT NOT NULL DEFAULT '0',
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS mirror_links (
    source_id TEXT PRIMARY KEY,
    market_id INTEGER NOT NULL UNIQUE REFERENCES markets(id),
    linked_at TEXT NOT NULL DEFAULT (datetime('now'))
);
`
