package vectorsearch

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"

	"github.com/truenorth/truenorth/internal/rag"
)

// classify maps a FindNeighbors failure into the retrieval taxonomy.
// Rate limiting, unavailability and deadline expiry are retryable; a
// wrong endpoint or index id, permission problems and anything
// unclassified are not.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return rag.RetryableRetrieval("vector search did not answer in time", err)
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		switch gErr.Code {
		case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return rag.RetryableRetrieval("vector search is temporarily unavailable due to high traffic", err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return rag.NonRetryableRetrieval("permission denied for vector search, check the configuration", err)
		case http.StatusNotFound, http.StatusBadRequest:
			return rag.NonRetryableRetrieval("the index endpoint or deployed index was not found or the query was invalid", err)
		}
	}
	return rag.NonRetryableRetrieval("an unexpected error occurred during vector search", err)
}
