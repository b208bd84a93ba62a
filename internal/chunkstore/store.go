// Package chunkstore hydrates retrieved neighbor identifiers into full
// chunk records from PostgreSQL.
//
// Chunks are written by the out-of-scope ingestion process; this package
// only reads them. The store issues one batched lookup per request and
// re-orders the unordered row set to match the retrieval rank.
package chunkstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/truenorth/truenorth/internal/log"
	"github.com/truenorth/truenorth/internal/rag"
)

// selectChunksSQL is the single batched lookup by identifier set.
const selectChunksSQL = `SELECT id, content, scraped_at FROM chunks WHERE id = ANY($1)`

// Store reads chunk records from PostgreSQL.
// Safe for concurrent use; the pool hands out one connection per call.
type Store struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// New creates a Store backed by the given pool.
func New(pool *pgxpool.Pool, logger log.Logger) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Hydrate resolves neighbors into chunk records, preserving the neighbor
// order. Neighbors without an identifier are ignored; if no identifiers
// remain the store is not queried at all. Identifiers with no matching
// row are logged as a data-integrity discrepancy and dropped from the
// output rather than raised, so missing chunks degrade the context
// instead of aborting the request.
func (s *Store) Hydrate(ctx context.Context, neighbors []rag.Neighbor) ([]rag.Chunk, error) {
	ids := make([]string, 0, len(neighbors))
	for _, n := range neighbors {
		if n.ID == "" {
			continue
		}
		ids = append(ids, n.ID)
	}
	if len(ids) == 0 {
		s.logger.Warn("no valid ids found in neighbors, returning an empty list")
		return nil, nil
	}

	s.logger.Info("fetching corresponding records from database", "ids", len(ids))

	rows, err := s.pool.Query(ctx, selectChunksSQL, ids)
	if err != nil {
		return nil, classify(err, "querying chunks")
	}
	defer rows.Close()

	byID := make(map[string]rag.Chunk, len(ids))
	for rows.Next() {
		var chunk rag.Chunk
		if err := rows.Scan(&chunk.ID, &chunk.Content, &chunk.ScrapedAt); err != nil {
			return nil, classify(err, "scanning chunk row")
		}
		byID[chunk.ID] = chunk
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, "reading chunk rows")
	}

	ordered := orderByID(ids, byID, s.logger)
	s.logger.Debug("fetched records", "found", len(ordered), "requested", len(ids))
	return ordered, nil
}

// orderByID rebuilds the record list in the original identifier order.
// Missing records are dropped after logging the discrepancy.
func orderByID(ids []string, byID map[string]rag.Chunk, logger log.Logger) []rag.Chunk {
	ordered := make([]rag.Chunk, 0, len(ids))
	for _, id := range ids {
		chunk, found := byID[id]
		if !found {
			logger.Error(fmt.Sprintf("database discrepancy occurred, the chunk text of id %q could not be found", id))
			continue
		}
		ordered = append(ordered, chunk)
	}
	return ordered
}
