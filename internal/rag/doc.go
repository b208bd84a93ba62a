// Package rag implements the retrieval-augmented generation core of the
// truenorth support backend.
//
// # Overview
//
// A user question is answered in two halves. The retrieval half turns
// the question into a grounded context block:
//
//	question
//	     |
//	     v
//	HyDE reformulation (generative call, bracketed language tag)
//	     |
//	     +-- SplitLastBrackets / DetectLanguage
//	     v
//	embedding (RETRIEVAL_QUERY, fixed dimensionality)
//	     |
//	     v
//	nearest-neighbor search (top-K, closest first)
//	     |
//	     v
//	chunk hydration (relational store, rank order preserved)
//	     |
//	     v
//	AssembleContext -> (context, language)
//
// The generation half streams a localized answer from the generative
// model given the original question and the assembled context.
//
// # Error model
//
// Every external call site classifies its failures into *Error with two
// axes: stage (retrieval or generation) and retryability. The pipeline
// never retries internally; callers may re-invoke the whole pipeline on
// a retryable error and must surface a terminal message otherwise.
//
// # Concurrency
//
// Pipeline is immutable after construction and safe for concurrent use.
// One invocation is strictly sequential; concurrency across requests is
// the transport layer's concern.
package rag
