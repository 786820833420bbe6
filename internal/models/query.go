package models

import (
	"fmt"
	"strings"
)

// MaxVariants caps the expanded query set: the original question plus alternatives.
const MaxVariants = 5

// AskRequest is the request-scoped input for answering one question.
type AskRequest struct {
	Question string `json:"question"`
	// TopK overrides the configured per-variant result count when positive.
	TopK int `json:"top_k,omitempty"`
	// NoExpand skips query expansion and searches with the question alone.
	NoExpand bool `json:"no_expand,omitempty"`
}

// Validate trims the question and clamps TopK.
// Returns an error if the question is empty.
func (r *AskRequest) Validate() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return fmt.Errorf("%w: question cannot be empty", ErrInvalidRequest)
	}
	if r.TopK < 0 {
		r.TopK = 0
	}
	if r.TopK > 50 {
		r.TopK = 50
	}
	return nil
}

// ExpandedQuerySet is the original question plus its alternative phrasings.
// Variants[0] is always the original question.
type ExpandedQuerySet struct {
	OriginalQuestion string   `json:"original_question"`
	Variants         []string `json:"variants"`
	// Fallback is set when expansion failed and only the original question is searched.
	Fallback bool `json:"fallback,omitempty"`
}

// SingleQuery returns the set containing only question.
func SingleQuery(question string) *ExpandedQuerySet {
	return &ExpandedQuerySet{OriginalQuestion: question, Variants: []string{question}}
}
