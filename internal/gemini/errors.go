package gemini

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/api/googleapi"
	"google.golang.org/genai"

	"github.com/truenorth/truenorth/internal/rag"
)

// httpStatus extracts the backend HTTP status code from an error chain.
// Both the genai SDK (genai.APIError) and the google-api-go-client
// (googleapi.Error) can appear depending on the code path.
func httpStatus(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return gErr.Code, true
	}
	return 0, false
}

// transient reports whether err looks like a failure that could succeed
// on a plain retry: rate limiting, service unavailability or a deadline
// running out.
func transient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	code, ok := httpStatus(err)
	if !ok {
		return false
	}
	switch code {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// classifyRetrieval maps a backend failure from the reformulation or
// embedding call into the retrieval taxonomy. Unknown failures are
// non-retryable by default.
func classifyRetrieval(err error) error {
	if transient(err) {
		return rag.RetryableRetrieval("access to the external API is temporarily unavailable due to high traffic", err)
	}
	if code, ok := httpStatus(err); ok {
		switch code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return rag.NonRetryableRetrieval("permission denied for the external API, check the configuration", err)
		case http.StatusNotFound, http.StatusBadRequest:
			return rag.NonRetryableRetrieval("the specified resource was not found or the request was invalid", err)
		}
	}
	return rag.NonRetryableRetrieval("an unexpected error occurred during the search", err)
}

// classifyGeneration maps a backend failure from the answer generation
// call into the generation taxonomy.
func classifyGeneration(err error) error {
	if transient(err) {
		return rag.RetryableGeneration("the response generation service is temporarily unavailable due to high traffic", err)
	}
	if code, ok := httpStatus(err); ok {
		switch code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return rag.NonRetryableGeneration("permission denied for the response generation service", err)
		case http.StatusBadRequest, http.StatusPreconditionFailed:
			return rag.NonRetryableGeneration("the request is invalid or may have violated the content policy", err)
		}
	}
	return rag.NonRetryableGeneration("an unexpected error occurred while generating the response", err)
}
