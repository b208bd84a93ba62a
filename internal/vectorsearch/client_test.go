package vectorsearch

import (
	"context"
	"errors"
	"testing"
	"time"

	aiplatform "google.golang.org/api/aiplatform/v1"
	"google.golang.org/api/googleapi"

	"github.com/truenorth/truenorth/internal/log"
	"github.com/truenorth/truenorth/internal/rag"
)

func TestDecodeNeighbor(t *testing.T) {
	t.Run("decodes id, distance and scraped-at token", func(t *testing.T) {
		captured := time.Date(2025, 10, 17, 6, 43, 0, 0, time.UTC)
		n := &aiplatform.GoogleCloudAiplatformV1FindNeighborsResponseNeighbor{
			Distance: 0.42,
			Datapoint: &aiplatform.GoogleCloudAiplatformV1IndexDatapoint{
				DatapointId: "chunk-7",
				Restricts: []*aiplatform.GoogleCloudAiplatformV1IndexDatapointRestriction{
					{Namespace: "category", AllowList: []string{"shorts"}},
					{Namespace: "scraped_at_timestamp", AllowList: []string{"1760683380"}},
				},
			},
		}

		got := decodeNeighbor(n, log.NewNop())
		if got.ID != "chunk-7" {
			t.Errorf("ID = %q", got.ID)
		}
		if got.Distance != 0.42 {
			t.Errorf("Distance = %v", got.Distance)
		}
		if !got.ScrapedAt.Equal(captured) {
			t.Errorf("ScrapedAt = %v, want %v", got.ScrapedAt.UTC(), captured)
		}
	})

	t.Run("absent namespace yields zero timestamp, not an error", func(t *testing.T) {
		n := &aiplatform.GoogleCloudAiplatformV1FindNeighborsResponseNeighbor{
			Datapoint: &aiplatform.GoogleCloudAiplatformV1IndexDatapoint{
				DatapointId: "chunk-8",
			},
		}
		got := decodeNeighbor(n, log.NewNop())
		if !got.ScrapedAt.IsZero() {
			t.Errorf("ScrapedAt = %v, want zero", got.ScrapedAt)
		}
	})

	t.Run("malformed token yields zero timestamp", func(t *testing.T) {
		n := &aiplatform.GoogleCloudAiplatformV1FindNeighborsResponseNeighbor{
			Datapoint: &aiplatform.GoogleCloudAiplatformV1IndexDatapoint{
				DatapointId: "chunk-9",
				Restricts: []*aiplatform.GoogleCloudAiplatformV1IndexDatapointRestriction{
					{Namespace: "scraped_at_timestamp", AllowList: []string{"not-a-number"}},
				},
			},
		}
		got := decodeNeighbor(n, log.NewNop())
		if !got.ScrapedAt.IsZero() {
			t.Errorf("ScrapedAt = %v, want zero", got.ScrapedAt)
		}
	})

	t.Run("missing datapoint keeps distance only", func(t *testing.T) {
		n := &aiplatform.GoogleCloudAiplatformV1FindNeighborsResponseNeighbor{Distance: 1.5}
		got := decodeNeighbor(n, log.NewNop())
		if got.ID != "" || got.Distance != 1.5 {
			t.Errorf("unexpected neighbor: %+v", got)
		}
	})
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantRetryable bool
	}{
		{"rate limited", &googleapi.Error{Code: 429}, true},
		{"service unavailable", &googleapi.Error{Code: 503}, true},
		{"gateway timeout", &googleapi.Error{Code: 504}, true},
		{"deadline exceeded", context.DeadlineExceeded, true},
		{"permission denied", &googleapi.Error{Code: 403}, false},
		{"endpoint not found", &googleapi.Error{Code: 404}, false},
		{"invalid argument", &googleapi.Error{Code: 400}, false},
		{"unknown server error", &googleapi.Error{Code: 500}, false},
		{"unclassified", errors.New("weird"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classify(tt.err)
			if got := rag.IsRetryable(classified); got != tt.wantRetryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.wantRetryable)
			}
			stage, ok := rag.StageOf(classified)
			if !ok || stage != rag.StageRetrieval {
				t.Errorf("StageOf = %v, %v, want retrieval", stage, ok)
			}
		})
	}
}
