package scoring

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomVector(r *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = float32(r.NormFloat64())
	}
	return v
}

func TestSimilarityBounds(t *testing.T) {
	t.Run("identical unit vectors", func(t *testing.T) {
		v := Normalize([]float32{3, 4, 0})
		assert.InDelta(t, 1.0, VectorSimilarity(v, v), 1e-6)
	})

	t.Run("orthogonal vectors", func(t *testing.T) {
		assert.InDelta(t, 0.5, VectorSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	})

	t.Run("opposite vectors", func(t *testing.T) {
		assert.InDelta(t, 0.0, VectorSimilarity([]float32{1, 2, 3}, []float32{-1, -2, -3}), 1e-9)
	})

	t.Run("zero vector contributes nothing", func(t *testing.T) {
		zero := make([]float32, 3)
		assert.Equal(t, 0.0, VectorSimilarity(zero, []float32{1, 0, 0}))
		assert.Equal(t, 0.0, VectorSimilarity([]float32{1, 0, 0}, zero))
		assert.Equal(t, 0.0, Cosine(zero, zero))
	})

	t.Run("random pairs stay in range", func(t *testing.T) {
		r := rand.New(rand.NewPCG(1, 2))
		for i := 0; i < 500; i++ {
			s := VectorSimilarity(randomVector(r, 16), randomVector(r, 16))
			require.GreaterOrEqual(t, s, 0.0)
			require.LessOrEqual(t, s, 1.0)
		}
	})
}

func TestSimilarityAgreesWithCosine(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 500; i++ {
		a := Normalize(randomVector(r, 32))
		b := Normalize(randomVector(r, 32))

		fromDistance := Similarity(CosineDistance(a, b))
		fromCosine := (1 + Cosine(a, b)) / 2
		assert.InDelta(t, fromCosine, fromDistance, 1e-6)

		// The unit-vector fast path agrees with the general formulation.
		assert.InDelta(t, fromDistance, Similarity(UnitDistance(a, b)), 1e-6)
	}
}

func TestDecayHalfLifeIdentity(t *testing.T) {
	for _, h := range []float64{0.25, 1, 7, 30, 90, 365.25, 10000} {
		assert.InDelta(t, 0.5, Decay(h, h), 1e-9, "half-life %v", h)
		assert.Equal(t, 1.0, Decay(0, h))
	}
}

func TestDecayStrictlyDecreasing(t *testing.T) {
	const h = 30.0
	prev := Decay(0, h)
	for age := 0.5; age <= 1000; age += 0.5 {
		cur := Decay(age, h)
		require.Less(t, cur, prev, "age %v", age)
		require.Greater(t, cur, 0.0)
		prev = cur
	}
}

func TestFutureTimestampClamp(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	future := now.Add(72 * time.Hour)

	age := AgeDays(future, now)
	assert.Equal(t, 0.0, age)
	assert.Equal(t, 1.0, Decay(age, 30))
	assert.Equal(t, 1.0, Decay(-5, 30))
}

func TestAgeDays(t *testing.T) {
	now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.InDelta(t, 60.0, AgeDays(now.AddDate(0, 0, -60), now), 1e-9)
	assert.InDelta(t, 0.5, AgeDays(now.Add(-12*time.Hour), now), 1e-9)
}

func TestScoreScenarioB(t *testing.T) {
	// doc1: similarity 0.6, brand new. doc2: similarity 0.9, 60 days old.
	score1 := Score(0.6, Decay(0, 30))
	score2 := Score(0.9, Decay(60, 30))

	assert.InDelta(t, 1.0/3.0, Decay(60, 30), 1e-12)
	assert.InDelta(t, 0.3, score2, 1e-12)
	assert.InDelta(t, 0.6, score1, 1e-12)
	assert.Greater(t, score1, score2)
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{1, 2, 2})
	assert.InDelta(t, 1.0, Norm(v), 1e-6)
	assert.InDelta(t, 1.0/3.0, v[0], 1e-6)

	zero := Normalize([]float32{0, 0})
	assert.Equal(t, []float32{0, 0}, zero)
	assert.False(t, math.IsNaN(float64(zero[0])))
}
