// Package gemini wraps the google.golang.org/genai client behind the
// pipeline's Generator and Embedder contracts.
//
// The client targets the Vertex AI backend and is immutable after
// construction; a single instance is created at process start and shared
// by all requests. Every call site classifies backend failures into the
// pipeline error taxonomy before returning.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"google.golang.org/genai"

	"github.com/truenorth/truenorth/internal/log"
	"github.com/truenorth/truenorth/internal/rag"
)

// embedTaskType marks query-side embeddings as asymmetric from the
// document-side embeddings produced by the ingestion pipeline.
const embedTaskType = "RETRIEVAL_QUERY"

// Config contains the model identities and embedding dimensionality.
type Config struct {
	Project  string
	Location string

	HydeModel  string // reformulation model
	QAModel    string // answer generation model
	EmbedModel string // embedding model

	// Dimensions is the embedding output dimensionality. It must match
	// the deployed vector index; a mismatch is a configuration error.
	Dimensions int32
}

// Client issues generative and embedding calls against Vertex AI.
// Safe for concurrent use.
type Client struct {
	genai  *genai.Client
	cfg    Config
	logger log.Logger
}

// New creates a Client for the Vertex AI backend. Credentials are
// resolved by the genai SDK from the environment (ADC).
func New(ctx context.Context, cfg Config, logger log.Logger) (*Client, error) {
	if cfg.Project == "" || cfg.Location == "" {
		return nil, errors.New("project and location are required")
	}
	if cfg.HydeModel == "" || cfg.QAModel == "" || cfg.EmbedModel == "" {
		return nil, errors.New("hyde, qa and embedding model ids are required")
	}
	if cfg.Dimensions <= 0 {
		return nil, errors.New("embedding dimensionality must be positive")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:  genai.BackendVertexAI,
		Project:  cfg.Project,
		Location: cfg.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	return &Client{genai: client, cfg: cfg, logger: logger}, nil
}

// Generate issues one non-streaming generative request and returns the
// model's raw text. Used for HyDE reformulation; failures are classified
// as retrieval errors.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := c.genai.Models.GenerateContent(ctx, c.cfg.HydeModel, genai.Text(prompt), nil)
	if err != nil {
		return "", classifyRetrieval(err)
	}

	text := resp.Text()
	c.logger.Info("generated hypothetical document", "model", c.cfg.HydeModel)
	c.logger.Debug("hypothetical document text", "text", text)

	return text, nil
}

// Embed converts text into a fixed-dimension vector with retrieval
// query intent. Failures are classified as retrieval errors.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	dims := c.cfg.Dimensions
	resp, err := c.genai.Models.EmbedContent(ctx, c.cfg.EmbedModel,
		genai.Text(text),
		&genai.EmbedContentConfig{
			TaskType:             embedTaskType,
			OutputDimensionality: &dims,
		})
	if err != nil {
		return nil, classifyRetrieval(err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, rag.NonRetryableRetrieval("empty embedding response", nil)
	}

	c.logger.Debug("embedding generated", "model", c.cfg.EmbedModel, "dimensions", len(resp.Embeddings[0].Values))
	return resp.Embeddings[0].Values, nil
}

// Stream issues one streaming generative request for the final answer.
//
// The first fragment is pulled eagerly so that failures before streaming
// begins (authorization, invalid prompt, transient unavailability) are
// classified and returned here. Errors during iteration pass through the
// sequence unclassified; callers treat partial output as best-effort.
// The underlying stream is released on every exit path, including early
// breaks and context cancellation.
func (c *Client) Stream(ctx context.Context, prompt string) (iter.Seq2[string, error], error) {
	c.logger.Info("starting answer generation", "model", c.cfg.QAModel)

	next, stop := iter.Pull2(c.genai.Models.GenerateContentStream(ctx, c.cfg.QAModel, genai.Text(prompt), nil))

	first, err, ok := next()
	if err != nil {
		stop()
		return nil, classifyGeneration(err)
	}

	seq := func(yield func(string, error) bool) {
		defer stop()
		if !ok {
			return
		}
		if !yield(first.Text(), nil) {
			return
		}
		for {
			resp, err, ok := next()
			if !ok {
				return
			}
			if err != nil {
				yield("", err)
				return
			}
			if !yield(resp.Text(), nil) {
				return
			}
		}
	}
	return seq, nil
}
