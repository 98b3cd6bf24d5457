// Package index is the adapter boundary to the document index collaborator:
// ranked fragment retrieval plus conversational answering over retrieved
// context. The rest of the system programs against the Client interface and
// the single explicit Answer result type — the core never inspects provider
// response shapes.
package index

import (
	"context"

	"github.com/cloudwego/eino/schema"
)

// NotFound is the exact refusal the answer model is instructed to emit when
// the retrieved manual content does not support an answer. Downstream checks
// match it as a case-insensitive exact substring, so it must never be
// reworded.
const NotFound = "Not found in the manual."

// Fragment is one unit of retrieved evidence: a chunk of manual text plus
// the manual it originated from and, when known, the page label.
type Fragment struct {
	// Manual is the identifier of the manual the fragment belongs to.
	Manual string

	// Page is the page label the fragment came from. Empty when unknown.
	Page string

	// Text is the fragment's content.
	Text string

	// Score is the retrieval similarity score.
	Score float32
}

// Answer is the explicit result of one conversational answer operation.
type Answer struct {
	// Text is the generated answer.
	Text string

	// Fragments are the fragments the answer was grounded in, in retrieval
	// order. The post-answer guard inspects these.
	Fragments []Fragment
}

// Client is the document index collaborator interface consumed by the core.
// Implementations must be safe to call from multiple goroutines.
type Client interface {
	// Retrieve returns the top-k ranked fragments for query. When manual is
	// non-empty, candidates are restricted to that manual.
	Retrieve(ctx context.Context, query string, topK int, manual string) ([]Fragment, error)

	// Answer condenses question against history (when present), retrieves
	// supporting fragments — restricted to manual when non-empty — and
	// generates an answer grounded in them.
	Answer(ctx context.Context, question string, history []*schema.Message, manual string) (Answer, error)
}
