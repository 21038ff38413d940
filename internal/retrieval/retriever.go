// Package retrieval defines the document-retrieval collaborator contract
// and its vector-store implementation. The pipeline depends only on the
// Retriever interface; an empty index yields an empty result, never an
// error.
package retrieval

import (
	"context"
	"strings"
)

// SourceDocument is one retrieved supporting document.
type SourceDocument struct {
	Title    string
	Snippet  string
	Score    float64
	SourceID string
}

// Context is the ordered retrieval result handed to generation and
// evaluation. It is owned by a single pipeline run and never mutated.
type Context struct {
	Documents          []SourceDocument
	HasRelevantSources bool
}

// FormatForPrompt renders the retrieved documents as a numbered context
// block for the generation and judge prompts.
func (c Context) FormatForPrompt() string {
	if len(c.Documents) == 0 {
		return "No supporting documents were found."
	}

	var b strings.Builder
	b.WriteString("Supporting documents:\n")
	for i, doc := range c.Documents {
		b.WriteString("\n[")
		b.WriteString(doc.SourceID)
		b.WriteString("] ")
		b.WriteString(doc.Title)
		b.WriteString("\n")
		b.WriteString(doc.Snippet)
		b.WriteString("\n")
		if i >= 9 {
			break
		}
	}
	return b.String()
}

// Retriever is the external search collaborator.
type Retriever interface {
	// Search returns up to k documents ranked by relevance. It returns an
	// empty slice, not an error, when nothing is indexed yet.
	Search(ctx context.Context, query string, k int) ([]SourceDocument, error)

	// Ready reports whether the underlying index has been populated.
	Ready() bool
}
