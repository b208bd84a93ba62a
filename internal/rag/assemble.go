package rag

import "strings"

// contextSeparator delimits chunks inside the assembled context and also
// prefixes the whole block.
const contextSeparator = "\n---\n"

// timestampLayout renders chunk capture times inside the context and in
// transport-facing output.
const timestampLayout = "2006/01/02 15:04"

// AssembleContext formats hydrated chunks into a single prompt-ready
// context block, preserving input order. Each chunk is prefixed with its
// capture date. Pure function; empty or zero-value chunks are skipped.
func AssembleContext(chunks []Chunk) string {
	documents := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if chunk.ID == "" && chunk.Content == "" {
			continue
		}
		documents = append(documents,
			"Data as of: "+chunk.ScrapedAt.Format(timestampLayout)+"\n"+chunk.Content)
	}
	return contextSeparator + strings.Join(documents, contextSeparator)
}
