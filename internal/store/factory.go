package store

import (
	"fmt"

	"github.com/katakuxiko/kbagent/internal/config"
)

// Factory hands out a fresh, empty index for a new session.
type Factory func(sessionID string) Index

// NewFactory opens the backend chosen in cfg. The returned close func
// releases its connections and must be called on shutdown.
func NewFactory(cfg config.IndexConfig, dim int) (Factory, func() error, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return func(string) Index { return NewMemory() }, func() error { return nil }, nil
	case config.BackendPostgres:
		pg, err := NewPgStore(cfg.PgConn, dim)
		if err != nil {
			return nil, nil, err
		}
		return func(id string) Index { return pg.ForSession(id) }, pg.Close, nil
	case config.BackendQdrant:
		qs, err := NewQdrantStore(cfg.QdrantAddr, cfg.QdrantCollection, dim)
		if err != nil {
			return nil, nil, err
		}
		return func(id string) Index { return qs.ForSession(id) }, qs.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown index backend %q", cfg.Backend)
}
