package chunkstore

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/truenorth/truenorth/internal/rag"
)

// classify maps a database failure into the retrieval taxonomy.
// Connection-level failures (network errors, startup races, deadlines)
// are retryable; query and schema errors reported by the server are
// bugs, not transient conditions, and anything unclassified is
// non-retryable by default. The Message is a fixed client-facing string;
// the operation detail stays in the wrapped error for the logs.
func classify(err error, op string) error {
	wrapped := fmt.Errorf("%s: %w", op, err)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return rag.NonRetryableRetrieval("an error occurred during a database operation", wrapped)
	}

	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr),
		pgconn.SafeToRetry(err):
		return rag.RetryableRetrieval("the connection to the database was temporarily lost", wrapped)
	}

	return rag.NonRetryableRetrieval("an error occurred during a database operation", wrapped)
}
