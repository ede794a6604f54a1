// Package search defines the retrieval surface the bandit selector's
// arms describe. No search engine lives here: Provider and
// FeatureExtractor are consumed interfaces, supplied by whatever
// retrieval stack a caller already runs.
package search

import "context"

// Query is what a caller hands to a Provider for one retrieval attempt.
type Query struct {
	Text       string
	ProjectID  string
	AgentTypes []string
	Arm        string // the bandit arm selected for this attempt, e.g. "fts-heavy"
	Limit      int
}

// Document is one retrieved item.
type Document struct {
	ID       string
	Score    float64
	Metadata map[string]interface{}
}

// Result is what a Provider returns for a Query.
type Result struct {
	Documents []Document
	Arm       string
}

// Provider executes a retrieval query. Implementations decide how Arm
// influences ranking; the kernel only chooses which arm to pass.
type Provider interface {
	Search(ctx context.Context, q Query) (Result, error)
}

// FeatureExtractor turns a Result into a fixed-length feature vector,
// for callers that feed retrieval quality into an external model
// rather than the bandit's own scalar reward.
type FeatureExtractor interface {
	Extract(r Result) []float64
}

// NullProvider returns an empty Result for every query. It is the
// always-safe default for callers that have not wired a real
// retrieval backend yet.
type NullProvider struct{}

func (NullProvider) Search(ctx context.Context, q Query) (Result, error) {
	return Result{Arm: q.Arm}, nil
}

var _ Provider = NullProvider{}
