package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/katakuxiko/kbagent/internal/model"
)

// PgStore keeps the chunks of every session in one pgvector table. Each
// session sees only its own rows through a PgIndex.
type PgStore struct {
	db  *sql.DB
	dim int
}

func NewPgStore(conn string, dim int) (*PgStore, error) {
	db, err := sql.Open("postgres", conn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureSchema(db, dim); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PgStore{db: db, dim: dim}, nil
}

func (s *PgStore) ForSession(sessionID string) *PgIndex {
	return &PgIndex{db: s.db, dim: s.dim, session: sessionID}
}

func (s *PgStore) Close() error { return s.db.Close() }

type PgIndex struct {
	db      *sql.DB
	dim     int
	session string
}

// Insert writes all chunks in one transaction.
func (p *PgIndex) Insert(ctx context.Context, chunks ...model.EmbeddedChunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if _, err := checkDims(p.dim, chunks); err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO kb_chunks (session_id, source, position, text, embedding)
		VALUES ($1, $2, $3, $4, $5)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, p.session, c.Chunk.Source, c.Chunk.Position, c.Chunk.Text, pgvector.NewVector(c.Vector)); err != nil {
			return fmt.Errorf("insert chunk %s@%d: %w", c.Chunk.Source, c.Chunk.Position, err)
		}
	}
	return tx.Commit()
}

func (p *PgIndex) Search(ctx context.Context, q []float32, k int) ([]model.SearchResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(q) != p.dim {
		return nil, ErrDimensionMismatch
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT source, position, text, embedding, embedding <-> $2 AS distance
		FROM kb_chunks
		WHERE session_id = $1
		ORDER BY distance, id
		LIMIT $3
	`, p.session, pgvector.NewVector(q), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []model.SearchResult
	for rows.Next() {
		var (
			r    model.SearchResult
			vec  pgvector.Vector
			dist float64
		)
		if err := rows.Scan(&r.Chunk.Source, &r.Chunk.Position, &r.Chunk.Text, &vec, &dist); err != nil {
			return nil, err
		}
		r.Vector = vec.Slice()
		r.Distance = float32(dist)
		res = append(res, r)
	}
	return res, rows.Err()
}

func (p *PgIndex) Reset(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM kb_chunks WHERE session_id = $1`, p.session)
	return err
}

func (p *PgIndex) Len(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM kb_chunks WHERE session_id = $1`, p.session).Scan(&n)
	return n, err
}
