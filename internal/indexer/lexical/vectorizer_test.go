package lexical

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/Book-Search-Platform/pkg/errors"
)

func unigramOptions(maxFeatures int) Options {
	return Options{MaxFeatures: maxFeatures, NGramMax: 1, MinDocFreq: 1, MaxDocFreqRatio: 1}
}

func TestTransformBeforeFit(t *testing.T) {
	_, err := New(DefaultOptions()).Transform("anything")
	assert.ErrorIs(t, err, apperrors.ErrNotIndexed)
}

func TestFitTransformVectorsAreUnitLength(t *testing.T) {
	v := New(DefaultOptions())
	vecs, err := v.FitTransform(context.Background(), []string{
		"A space opera about robots",
		"A cookbook for beginners",
		"Robots learn to cook in space",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for _, vec := range vecs {
		assert.InDelta(t, 1.0, vec.Norm(), 1e-6)
		for i := 1; i < len(vec.Indices); i++ {
			assert.Less(t, vec.Indices[i-1], vec.Indices[i])
		}
	}
	assert.Contains(t, v.Terms(), "space opera")
}

func TestVocabularyCapKeepsMostFrequent(t *testing.T) {
	v := New(unigramOptions(2))
	_, err := v.FitTransform(context.Background(), []string{"apple apple banana", "apple cherry"})
	require.NoError(t, err)

	// banana and cherry tie on frequency; the alphabetically first wins
	assert.Equal(t, []string{"apple", "banana"}, v.Terms())
	assert.InDelta(t, 1.0, v.IDF()[0], 1e-12)
	assert.InDelta(t, math.Log(3.0/2.0)+1, v.IDF()[1], 1e-12)
}

func TestVocabularyIsFrozen(t *testing.T) {
	v := New(unigramOptions(100))
	_, err := v.FitTransform(context.Background(), []string{"dragons and wizards", "haunted castle"})
	require.NoError(t, err)
	size := v.VocabularySize()

	q, err := v.Transform("durian smoothies")
	require.NoError(t, err)
	assert.True(t, q.IsZero())
	assert.Equal(t, size, v.VocabularySize())

	_, err = v.FitTransform(context.Background(), []string{"another corpus"})
	assert.ErrorIs(t, err, ErrAlreadyFitted)
}

func TestQueryMatchesCorpusDimensions(t *testing.T) {
	v := New(DefaultOptions())
	vecs, err := v.FitTransform(context.Background(), []string{"robots in space", "cookbook for beginners"})
	require.NoError(t, err)

	q, err := v.Transform("robot space")
	require.NoError(t, err)
	assert.Greater(t, q.Dot(vecs[0]), 0.5)
	assert.Zero(t, q.Dot(vecs[1]))
	for _, idx := range q.Indices {
		assert.Less(t, int(idx), v.VocabularySize())
	}
}

func TestEmptyVocabulary(t *testing.T) {
	_, err := New(DefaultOptions()).FitTransform(context.Background(), []string{"the and of", "a"})
	assert.ErrorIs(t, err, apperrors.ErrEmptyVocabulary)

	_, err = New(DefaultOptions()).FitTransform(context.Background(), nil)
	assert.ErrorIs(t, err, apperrors.ErrEmptyVocabulary)
}

func TestDocFrequencyPruning(t *testing.T) {
	v := New(Options{MaxFeatures: 100, NGramMax: 1, MinDocFreq: 2, MaxDocFreqRatio: 1})
	_, err := v.FitTransform(context.Background(), []string{"wizard tower", "wizard school", "pirate ship"})
	require.NoError(t, err)
	assert.Equal(t, []string{"wizard"}, v.Terms())
}

func TestRestoreRoundTrip(t *testing.T) {
	v := New(DefaultOptions())
	_, err := v.FitTransform(context.Background(), []string{"gothic horror novel", "cozy mystery in a village"})
	require.NoError(t, err)

	r, err := Restore(v.Options(), v.Terms(), v.IDF())
	require.NoError(t, err)

	want, _ := v.Transform("village horror")
	got, err := r.Transform("village horror")
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = Restore(v.Options(), []string{"a", "a"}, []float64{1, 1})
	assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot)
	_, err = Restore(v.Options(), []string{"a"}, nil)
	assert.ErrorIs(t, err, apperrors.ErrCorruptSnapshot)
}

func TestSparseDot(t *testing.T) {
	a := Vector{Indices: []int32{0, 2, 5}, Values: []float32{1, 2, 3}}
	b := Vector{Indices: []int32{2, 3, 5}, Values: []float32{4, 1, 1}}
	assert.InDelta(t, 11.0, a.Dot(b), 1e-9)
	assert.Equal(t, []float32{1, 0, 2, 0, 0, 3}, a.Dense(6))
	assert.Zero(t, a.Dot(Vector{}))
}
