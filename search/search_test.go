package search

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullProviderReturnsEmptyResult(t *testing.T) {
	p := NullProvider{}
	result, err := p.Search(context.Background(), Query{Arm: "fts-heavy"})
	require.NoError(t, err)
	assert.Empty(t, result.Documents)
	assert.Equal(t, "fts-heavy", result.Arm)
}

func TestFakeProviderReturnsRegisteredResultPerArm(t *testing.T) {
	p := NewFakeProvider().WithResult("vector-heavy", Result{
		Documents: []Document{{ID: "d1", Score: 0.9}},
		Arm:       "vector-heavy",
	})
	result, err := p.Search(context.Background(), Query{Arm: "vector-heavy"})
	require.NoError(t, err)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "d1", result.Documents[0].ID)
}

func TestFakeProviderFallsBackToEmptyResultForUnknownArm(t *testing.T) {
	p := NewFakeProvider()
	result, err := p.Search(context.Background(), Query{Arm: "unregistered"})
	require.NoError(t, err)
	assert.Empty(t, result.Documents)
}

func TestMeanScoreExtractorComputesAverageAndCount(t *testing.T) {
	e := MeanScoreExtractor{}
	features := e.Extract(Result{Documents: []Document{{Score: 1.0}, {Score: 0.5}}})
	require.Len(t, features, 2)
	assert.InDelta(t, 0.75, features[0], 1e-9)
	assert.Equal(t, 2.0, features[1])
}

func TestMeanScoreExtractorHandlesEmptyResult(t *testing.T) {
	e := MeanScoreExtractor{}
	features := e.Extract(Result{})
	assert.Equal(t, []float64{0, 0}, features)
}
