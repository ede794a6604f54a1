package search

import "context"

// FakeProvider serves a fixed, per-arm result set. It exists for
// tests that exercise the bandit selector end to end without a real
// retrieval backend.
type FakeProvider struct {
	Results map[string]Result
}

// NewFakeProvider builds a FakeProvider with an empty result table.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{Results: make(map[string]Result)}
}

// WithResult registers the Result returned for queries selecting arm.
func (f *FakeProvider) WithResult(arm string, result Result) *FakeProvider {
	f.Results[arm] = result
	return f
}

func (f *FakeProvider) Search(ctx context.Context, q Query) (Result, error) {
	if r, ok := f.Results[q.Arm]; ok {
		return r, nil
	}
	return Result{Arm: q.Arm}, nil
}

var _ Provider = (*FakeProvider)(nil)

// MeanScoreExtractor is a minimal FeatureExtractor grounded on the
// simplest useful signal: average document score and result count.
type MeanScoreExtractor struct{}

func (MeanScoreExtractor) Extract(r Result) []float64 {
	if len(r.Documents) == 0 {
		return []float64{0, 0}
	}
	var sum float64
	for _, d := range r.Documents {
		sum += d.Score
	}
	return []float64{sum / float64(len(r.Documents)), float64(len(r.Documents))}
}

var _ FeatureExtractor = MeanScoreExtractor{}
