package rag

import "time"

// Neighbor is a candidate match returned by nearest-neighbor vector
// search. ID correlates to a chunk primary key in the relational store.
// Distance is index-defined; smaller means closer. ScrapedAt is decoded
// from index-side metadata and may be zero when the index carries none.
type Neighbor struct {
	ID        string
	Distance  float64
	ScrapedAt time.Time
}

// Chunk is a stored unit of source content, read-only from the
// pipeline's perspective. Chunks are written by the ingestion process.
type Chunk struct {
	ID        string
	Content   string
	ScrapedAt time.Time
}
