package rag

import (
	"context"
	"errors"
	"iter"
	"strings"

	"github.com/truenorth/truenorth/internal/log"
)

// Defaults applied when Config leaves the knobs at zero.
const (
	// DefaultMaxInput is the maximum user query length in runes.
	// Longer queries are truncated before any external call.
	DefaultMaxInput = 200

	// DefaultTopK is the number of neighbors requested from the index.
	DefaultTopK = 4
)

// Generator issues generative-model calls. Generate is the non-streaming
// reformulation call and classifies its failures as retrieval errors;
// Stream is the final answer call and classifies pre-stream failures as
// generation errors. Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string) (iter.Seq2[string, error], error)
}

// Embedder converts text into a fixed-dimension vector with retrieval
// query intent (asymmetric from document-side embeddings).
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index answers nearest-neighbor queries, closest first. An empty result
// is not an error at this layer; the pipeline decides whether it is
// terminal.
type Index interface {
	Search(ctx context.Context, vector []float32, k int) ([]Neighbor, error)
}

// ChunkStore resolves neighbor identifiers into full chunk records,
// preserving the neighbor order. Identifiers without a matching record
// are dropped, not errored.
type ChunkStore interface {
	Hydrate(ctx context.Context, neighbors []Neighbor) ([]Chunk, error)
}

// Config contains all required parameters for the Pipeline.
type Config struct {
	Generator Generator
	Embedder  Embedder
	Index     Index
	Chunks    ChunkStore
	Logger    log.Logger

	MaxInput int // maximum query length in runes (0 = DefaultMaxInput)
	TopK     int // neighbors to request (0 = DefaultTopK)
}

// validate checks that all required dependencies are present.
func (cfg Config) validate() error {
	if cfg.Generator == nil {
		return errors.New("generator is required")
	}
	if cfg.Embedder == nil {
		return errors.New("embedder is required")
	}
	if cfg.Index == nil {
		return errors.New("index is required")
	}
	if cfg.Chunks == nil {
		return errors.New("chunk store is required")
	}
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}

// Pipeline orchestrates the retrieval-augmented answer flow: HyDE
// reformulation, embedding, nearest-neighbor retrieval, chunk hydration,
// context assembly and streaming answer generation.
//
// All dependencies are captured immutably at construction. Pipeline
// holds no per-request state and is safe for concurrent use from
// multiple independent request contexts. Within one request the stages
// run strictly in order; each stage classifies its own failures and the
// pipeline short-circuits on the first error without retrying.
type Pipeline struct {
	generator Generator
	embedder  Embedder
	index     Index
	chunks    ChunkStore
	logger    log.Logger
	maxInput  int
	topK      int
}

// New creates a Pipeline from cfg.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	maxInput := cfg.MaxInput
	if maxInput <= 0 {
		maxInput = DefaultMaxInput
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	return &Pipeline{
		generator: cfg.Generator,
		embedder:  cfg.Embedder,
		index:     cfg.Index,
		chunks:    cfg.Chunks,
		logger:    cfg.Logger,
		maxInput:  maxInput,
		topK:      topK,
	}, nil
}

// HandleRetrieval runs the retrieval half of the pipeline and returns
// the assembled context together with the detected response language.
//
// An empty or whitespace-only query, an empty neighbor set and an empty
// hydrated set are all terminal non-retryable conditions. Errors from
// the stages arrive already classified and are propagated unchanged.
func (p *Pipeline) HandleRetrieval(ctx context.Context, query string) (string, Language, error) {
	if strings.TrimSpace(query) == "" {
		return "", English, NonRetryableRetrieval("user query is empty or contains only whitespace", nil)
	}

	if truncated := truncate(query, p.maxInput); truncated != query {
		p.logger.Info("input length exceeded maximum, truncating", "max_runes", p.maxInput)
		query = truncated
	}

	document, err := p.generator.Generate(ctx, HydePrompt(query))
	if err != nil {
		return "", English, err
	}

	body, tag := SplitLastBrackets(document)
	language := DetectLanguage(tag)

	vector, err := p.embedder.Embed(ctx, body)
	if err != nil {
		return "", English, err
	}

	neighbors, err := p.index.Search(ctx, vector, p.topK)
	if err != nil {
		return "", English, err
	}
	if len(neighbors) == 0 {
		p.logger.Info("no relevant datapoints found for the user's query")
		return "", English, NonRetryableRetrieval("no relevant datapoints found for the question", nil)
	}

	chunks, err := p.chunks.Hydrate(ctx, neighbors)
	if err != nil {
		return "", English, err
	}
	if len(chunks) == 0 {
		p.logger.Error("no chunks found from datapoint ids")
		return "", English, NonRetryableRetrieval("no chunks were found from datapoint ids", nil)
	}

	finalContext := AssembleContext(chunks)
	p.logger.Debug("assembled context", "chunks", len(chunks), "language", language)

	return finalContext, language, nil
}

// GenerateStream starts the streaming answer generation for question,
// grounded on the assembled context and written in language.
//
// The returned sequence is finite, single-pass and not restartable.
// Errors before the first fragment are classified and returned directly;
// errors while iterating surface through the sequence and partial output
// is best-effort. Cancelling ctx stops emission and releases the
// underlying stream.
func (p *Pipeline) GenerateStream(ctx context.Context, question, docs string, language Language) (iter.Seq2[string, error], error) {
	return p.generator.Stream(ctx, QAPrompt(question, docs, language))
}

// truncate limits s to max runes. Truncating an already-truncated string
// is a no-op.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
