package repository

import "strings"

// Schema definitions for the Harrier database.
// {{ID}} expands to the driver's auto-increment primary key so history rows
// keep their insertion order.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id {{ID}},
    user_id BIGINT NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    merchant_name TEXT NOT NULL,
    amount DOUBLE PRECISION NOT NULL,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_user_time ON transactions(user_id, timestamp);
`

const schemaRuns = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    created_at TIMESTAMP NOT NULL,
    total_transactions INTEGER NOT NULL,
    suspicious_transactions INTEGER NOT NULL,
    report TEXT NOT NULL,
    rule_results TEXT NOT NULL,
    flagged TEXT NOT NULL,
    output_exported INTEGER NOT NULL DEFAULT 0,
    report_exported INTEGER NOT NULL DEFAULT 0,
    metadata TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
`

// AllSchemas returns all schema statements in order for the given driver.
func AllSchemas(driver string) []string {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if driver == "postgres" {
		id = "BIGSERIAL PRIMARY KEY"
	}
	schemas := []string{schemaTransactions, schemaRuns}
	for i, s := range schemas {
		schemas[i] = strings.ReplaceAll(s, "{{ID}}", id)
	}
	return schemas
}
