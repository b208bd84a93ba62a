package rag

import (
	"context"
	"iter"
	"strings"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/truenorth/truenorth/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeGenerator records prompts and returns canned output.
type fakeGenerator struct {
	generateOut string
	generateErr error
	lastPrompt  string

	streamChunks []string
	streamErr    error // returned before streaming begins
	midStreamErr error // surfaced through the sequence after the chunks
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.lastPrompt = prompt
	if f.generateErr != nil {
		return "", f.generateErr
	}
	return f.generateOut, nil
}

func (f *fakeGenerator) Stream(_ context.Context, prompt string) (iter.Seq2[string, error], error) {
	f.lastPrompt = prompt
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	return func(yield func(string, error) bool) {
		for _, c := range f.streamChunks {
			if !yield(c, nil) {
				return
			}
		}
		if f.midStreamErr != nil {
			yield("", f.midStreamErr)
		}
	}, nil
}

type fakeEmbedder struct {
	vector   []float32
	err      error
	lastText string
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.lastText = text
	return f.vector, f.err
}

type fakeIndex struct {
	neighbors  []Neighbor
	err        error
	lastVector []float32
	lastK      int
}

func (f *fakeIndex) Search(_ context.Context, vector []float32, k int) ([]Neighbor, error) {
	f.lastVector = vector
	f.lastK = k
	return f.neighbors, f.err
}

type fakeChunks struct {
	chunks        []Chunk
	err           error
	lastNeighbors []Neighbor
}

func (f *fakeChunks) Hydrate(_ context.Context, neighbors []Neighbor) ([]Chunk, error) {
	f.lastNeighbors = neighbors
	return f.chunks, f.err
}

// newTestPipeline wires a pipeline over a healthy set of fakes; tests
// override individual fakes to inject failures.
func newTestPipeline(t *testing.T, gen *fakeGenerator, emb *fakeEmbedder, idx *fakeIndex, ch *fakeChunks) *Pipeline {
	t.Helper()
	p, err := New(Config{
		Generator: gen,
		Embedder:  emb,
		Index:     idx,
		Chunks:    ch,
		Logger:    log.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func healthyFakes() (*fakeGenerator, *fakeEmbedder, *fakeIndex, *fakeChunks) {
	ts := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)
	gen := &fakeGenerator{generateOut: "A reformulated question. Some context.[Japanese]"}
	emb := &fakeEmbedder{vector: []float32{0.1, 0.2, 0.3}}
	idx := &fakeIndex{neighbors: []Neighbor{
		{ID: "id3", Distance: 0.1, ScrapedAt: ts},
		{ID: "id1", Distance: 0.2, ScrapedAt: ts},
		{ID: "id2", Distance: 0.3, ScrapedAt: ts},
	}}
	ch := &fakeChunks{chunks: []Chunk{
		{ID: "id3", Content: "third doc", ScrapedAt: ts},
		{ID: "id1", Content: "first doc", ScrapedAt: ts},
		{ID: "id2", Content: "second doc", ScrapedAt: ts},
	}}
	return gen, emb, idx, ch
}

func TestHandleRetrievalHappyPath(t *testing.T) {
	gen, emb, idx, ch := healthyFakes()
	p := newTestPipeline(t, gen, emb, idx, ch)

	docs, language, err := p.HandleRetrieval(t.Context(), "how do shorts work?")
	if err != nil {
		t.Fatalf("HandleRetrieval: %v", err)
	}

	if language != Japanese {
		t.Errorf("language = %v, want Japanese", language)
	}

	// The embedded body must never include the bracket tag.
	if strings.Contains(emb.lastText, "[Japanese]") {
		t.Errorf("embedded text still contains language tag: %q", emb.lastText)
	}

	// Round-trip: every chunk body appears exactly once, preceded by
	// its formatted date, in rank order.
	for _, body := range []string{"third doc", "first doc", "second doc"} {
		if strings.Count(docs, body) != 1 {
			t.Errorf("chunk body %q not present exactly once in context", body)
		}
	}
	third := strings.Index(docs, "third doc")
	first := strings.Index(docs, "first doc")
	second := strings.Index(docs, "second doc")
	if !(third < first && first < second) {
		t.Errorf("chunks out of rank order: positions %d, %d, %d", third, first, second)
	}
	if !strings.Contains(docs, "Data as of: 2025/07/01 12:00\nthird doc") {
		t.Errorf("chunk not preceded by formatted date: %q", docs)
	}

	if idx.lastK != DefaultTopK {
		t.Errorf("k = %d, want %d", idx.lastK, DefaultTopK)
	}
}

// Generative models usually terminate their output with a newline; the
// language tag must still be detected and stripped from the embedded body.
func TestHandleRetrievalTagWithTrailingNewline(t *testing.T) {
	gen, emb, idx, ch := healthyFakes()
	gen.generateOut = "A reformulated question. Some context.[Japanese]\n"
	p := newTestPipeline(t, gen, emb, idx, ch)

	_, language, err := p.HandleRetrieval(t.Context(), "how do shorts work?")
	if err != nil {
		t.Fatalf("HandleRetrieval: %v", err)
	}

	if language != Japanese {
		t.Errorf("language = %v, want Japanese", language)
	}
	if strings.Contains(emb.lastText, "[Japanese]") {
		t.Errorf("embedded text still contains language tag: %q", emb.lastText)
	}
}

func TestHandleRetrievalEmptyQuery(t *testing.T) {
	for _, query := range []string{"", "   ", "\n\t "} {
		gen, emb, idx, ch := healthyFakes()
		p := newTestPipeline(t, gen, emb, idx, ch)

		_, _, err := p.HandleRetrieval(t.Context(), query)
		if err == nil {
			t.Fatalf("query %q: expected error", query)
		}
		if IsRetryable(err) {
			t.Errorf("query %q: empty query must be non-retryable", query)
		}
		if gen.lastPrompt != "" {
			t.Errorf("query %q: generator called for empty query", query)
		}
	}
}

func TestHandleRetrievalTruncatesBeforeExternalCalls(t *testing.T) {
	gen, emb, idx, ch := healthyFakes()
	p := newTestPipeline(t, gen, emb, idx, ch)

	long := strings.Repeat("あ", DefaultMaxInput+50)
	if _, _, err := p.HandleRetrieval(t.Context(), long); err != nil {
		t.Fatalf("HandleRetrieval: %v", err)
	}

	want := strings.Repeat("あ", DefaultMaxInput)
	if !strings.HasSuffix(gen.lastPrompt, want) {
		t.Error("prompt does not end with the truncated query")
	}
	if strings.Contains(gen.lastPrompt, strings.Repeat("あ", DefaultMaxInput+1)) {
		t.Error("prompt contains more than the maximum input length")
	}
}

func TestTruncateIdempotent(t *testing.T) {
	long := strings.Repeat("x", 500)
	once := truncate(long, DefaultMaxInput)
	twice := truncate(once, DefaultMaxInput)
	if once != twice {
		t.Error("truncating twice differs from truncating once")
	}
	if truncate("short", DefaultMaxInput) != "short" {
		t.Error("short input must be unchanged")
	}
}

func TestHandleRetrievalEmptyNeighbors(t *testing.T) {
	gen, emb, idx, ch := healthyFakes()
	idx.neighbors = nil
	p := newTestPipeline(t, gen, emb, idx, ch)

	_, _, err := p.HandleRetrieval(t.Context(), "anything")
	if err == nil {
		t.Fatal("expected terminal error for empty retrieval")
	}
	if IsRetryable(err) {
		t.Error("empty retrieval must be non-retryable")
	}
	if !strings.Contains(err.Error(), "no relevant datapoints") {
		t.Errorf("unexpected error: %v", err)
	}
	if ch.lastNeighbors != nil {
		t.Error("hydrator must not be called when retrieval is empty")
	}
}

func TestHandleRetrievalEmptyChunks(t *testing.T) {
	gen, emb, idx, ch := healthyFakes()
	ch.chunks = nil
	p := newTestPipeline(t, gen, emb, idx, ch)

	_, _, err := p.HandleRetrieval(t.Context(), "anything")
	if err == nil {
		t.Fatal("expected terminal error for empty hydration")
	}
	if IsRetryable(err) {
		t.Error("empty hydration must be non-retryable")
	}
	if !strings.Contains(err.Error(), "no chunks") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestHandleRetrievalPropagatesClassifiedErrors(t *testing.T) {
	tests := []struct {
		name          string
		mutate        func(*fakeGenerator, *fakeEmbedder, *fakeIndex, *fakeChunks)
		wantRetryable bool
	}{
		{
			name: "transient reformulation failure",
			mutate: func(g *fakeGenerator, _ *fakeEmbedder, _ *fakeIndex, _ *fakeChunks) {
				g.generateErr = RetryableRetrieval("service unavailable", nil)
			},
			wantRetryable: true,
		},
		{
			name: "permission failure on embedding",
			mutate: func(_ *fakeGenerator, e *fakeEmbedder, _ *fakeIndex, _ *fakeChunks) {
				e.err = NonRetryableRetrieval("permission denied", nil)
			},
			wantRetryable: false,
		},
		{
			name: "transient index failure",
			mutate: func(_ *fakeGenerator, _ *fakeEmbedder, i *fakeIndex, _ *fakeChunks) {
				i.err = RetryableRetrieval("quota exceeded", nil)
			},
			wantRetryable: true,
		},
		{
			name: "schema failure on hydration",
			mutate: func(_ *fakeGenerator, _ *fakeEmbedder, _ *fakeIndex, c *fakeChunks) {
				c.err = NonRetryableRetrieval("database operation failed", nil)
			},
			wantRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen, emb, idx, ch := healthyFakes()
			tt.mutate(gen, emb, idx, ch)
			p := newTestPipeline(t, gen, emb, idx, ch)

			_, _, err := p.HandleRetrieval(t.Context(), "anything")
			if err == nil {
				t.Fatal("expected error")
			}
			if got := IsRetryable(err); got != tt.wantRetryable {
				t.Errorf("IsRetryable = %v, want %v", got, tt.wantRetryable)
			}
			stage, ok := StageOf(err)
			if !ok || stage != StageRetrieval {
				t.Errorf("StageOf = %v, %v, want retrieval", stage, ok)
			}
		})
	}
}

func TestGenerateStream(t *testing.T) {
	t.Run("streams chunks and embeds prompt parameters", func(t *testing.T) {
		gen, emb, idx, ch := healthyFakes()
		gen.streamChunks = []string{"The ", "answer."}
		p := newTestPipeline(t, gen, emb, idx, ch)

		stream, err := p.GenerateStream(t.Context(), "the question", "the context", Korean)
		if err != nil {
			t.Fatalf("GenerateStream: %v", err)
		}

		var got strings.Builder
		for chunk, streamErr := range stream {
			if streamErr != nil {
				t.Fatalf("stream error: %v", streamErr)
			}
			got.WriteString(chunk)
		}
		if got.String() != "The answer." {
			t.Errorf("streamed %q", got.String())
		}

		for _, want := range []string{"Korean", "the context", "the question"} {
			if !strings.Contains(gen.lastPrompt, want) {
				t.Errorf("prompt missing %q", want)
			}
		}
	})

	t.Run("pre-stream failure is classified", func(t *testing.T) {
		gen, emb, idx, ch := healthyFakes()
		gen.streamErr = RetryableGeneration("model overloaded", nil)
		p := newTestPipeline(t, gen, emb, idx, ch)

		_, err := p.GenerateStream(t.Context(), "q", "ctx", English)
		if err == nil {
			t.Fatal("expected error")
		}
		if !IsRetryable(err) {
			t.Error("overload must be retryable")
		}
		stage, _ := StageOf(err)
		if stage != StageGeneration {
			t.Errorf("stage = %v, want generation", stage)
		}
	})

	t.Run("mid-stream failure surfaces through the sequence", func(t *testing.T) {
		gen, emb, idx, ch := healthyFakes()
		gen.streamChunks = []string{"partial "}
		gen.midStreamErr = NonRetryableGeneration("stream cut", nil)
		p := newTestPipeline(t, gen, emb, idx, ch)

		stream, err := p.GenerateStream(t.Context(), "q", "ctx", English)
		if err != nil {
			t.Fatalf("GenerateStream: %v", err)
		}

		var chunks []string
		var streamErr error
		for chunk, e := range stream {
			if e != nil {
				streamErr = e
				break
			}
			chunks = append(chunks, chunk)
		}
		if len(chunks) != 1 || chunks[0] != "partial " {
			t.Errorf("chunks = %v", chunks)
		}
		if streamErr == nil {
			t.Error("expected mid-stream error")
		}
	})
}
