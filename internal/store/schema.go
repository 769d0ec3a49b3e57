package store

import (
	"database/sql"
	"fmt"
)

// ensureSchema creates the pgvector extension and the chunk table. Rows left
// by a previous process belong to sessions that no longer exist, so they are
// dropped on startup. This assumes one server process per database.
func ensureSchema(db *sql.DB, dim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS kb_chunks (
			id BIGSERIAL PRIMARY KEY,
			session_id TEXT NOT NULL,
			source TEXT NOT NULL,
			position INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, dim),
		`CREATE INDEX IF NOT EXISTS kb_chunks_session_idx ON kb_chunks (session_id, id)`,
		`DELETE FROM kb_chunks`,
	}

	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
