// Package vectorsearch queries a deployed Vertex AI Vector Search index
// through the pipeline's Index contract.
//
// The index itself (and the document-side datapoints it serves) is owned
// by the ingestion pipeline; this package only issues nearest-neighbor
// queries and decodes per-neighbor metadata.
package vectorsearch

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	aiplatform "google.golang.org/api/aiplatform/v1"
	"google.golang.org/api/option"

	"github.com/truenorth/truenorth/internal/log"
	"github.com/truenorth/truenorth/internal/rag"
)

// scrapedAtNamespace is the restrict namespace carrying the capture
// timestamp of a datapoint as unix seconds in its first allow-token.
const scrapedAtNamespace = "scraped_at_timestamp"

// Config identifies the deployed index to query.
type Config struct {
	// Location is the index endpoint region, e.g. "us-central1".
	Location string

	// IndexEndpoint is the full endpoint resource name:
	// projects/{p}/locations/{l}/indexEndpoints/{id}.
	IndexEndpoint string

	// DeployedIndexID names the index deployment on the endpoint.
	DeployedIndexID string
}

// Client issues FindNeighbors queries against one deployed index.
// Immutable after construction and safe for concurrent use.
type Client struct {
	service         *aiplatform.Service
	indexEndpoint   string
	deployedIndexID string
	logger          log.Logger
}

// New creates a Client bound to the configured index endpoint. The
// regional API endpoint is derived from cfg.Location.
func New(ctx context.Context, cfg Config, logger log.Logger) (*Client, error) {
	if cfg.Location == "" || cfg.IndexEndpoint == "" || cfg.DeployedIndexID == "" {
		return nil, errors.New("location, index endpoint and deployed index id are required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	service, err := aiplatform.NewService(ctx,
		option.WithEndpoint(fmt.Sprintf("https://%s-aiplatform.googleapis.com/", cfg.Location)))
	if err != nil {
		return nil, fmt.Errorf("creating aiplatform service: %w", err)
	}

	return &Client{
		service:         service,
		indexEndpoint:   cfg.IndexEndpoint,
		deployedIndexID: cfg.DeployedIndexID,
		logger:          logger,
	}, nil
}

// Search returns the k nearest neighbors for vector, closest first.
// Full datapoint payloads are requested so per-neighbor metadata is
// available without a second round trip. An empty result is returned as
// an empty slice, never as an error.
func (c *Client) Search(ctx context.Context, vector []float32, k int) ([]rag.Neighbor, error) {
	c.logger.Info("starting retrieval from vector search", "deployed_index", c.deployedIndexID, "k", k)

	features := make([]float64, len(vector))
	for i, v := range vector {
		features[i] = float64(v)
	}

	req := &aiplatform.GoogleCloudAiplatformV1FindNeighborsRequest{
		DeployedIndexId:     c.deployedIndexID,
		ReturnFullDatapoint: true,
		Queries: []*aiplatform.GoogleCloudAiplatformV1FindNeighborsRequestQuery{
			{
				NeighborCount: int64(k),
				Datapoint: &aiplatform.GoogleCloudAiplatformV1IndexDatapoint{
					DatapointId:   "query",
					FeatureVector: features,
				},
			},
		},
	}

	resp, err := c.service.Projects.Locations.IndexEndpoints.
		FindNeighbors(c.indexEndpoint, req).Context(ctx).Do()
	if err != nil {
		return nil, classify(err)
	}

	if len(resp.NearestNeighbors) == 0 {
		return nil, nil
	}

	neighbors := make([]rag.Neighbor, 0, len(resp.NearestNeighbors[0].Neighbors))
	for _, n := range resp.NearestNeighbors[0].Neighbors {
		neighbors = append(neighbors, decodeNeighbor(n, c.logger))
	}

	c.logger.Debug("retrieved datapoints from vector search", "count", len(neighbors))
	return neighbors, nil
}

// decodeNeighbor converts one API neighbor into the pipeline type,
// decoding the scraped-at timestamp from the restrict namespace when
// present. An absent or malformed token yields a zero timestamp.
func decodeNeighbor(n *aiplatform.GoogleCloudAiplatformV1FindNeighborsResponseNeighbor, logger log.Logger) rag.Neighbor {
	neighbor := rag.Neighbor{Distance: n.Distance}
	if n.Datapoint == nil {
		return neighbor
	}
	neighbor.ID = n.Datapoint.DatapointId

	for _, restrict := range n.Datapoint.Restricts {
		if restrict.Namespace != scrapedAtNamespace || len(restrict.AllowList) == 0 {
			continue
		}
		seconds, err := strconv.ParseInt(restrict.AllowList[0], 10, 64)
		if err != nil {
			logger.Warn("malformed scraped_at restrict token",
				"datapoint_id", neighbor.ID, "token", restrict.AllowList[0])
			break
		}
		neighbor.ScrapedAt = time.Unix(seconds, 0)
		break
	}
	return neighbor
}
