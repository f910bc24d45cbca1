package rhythm

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalibrateEpisodeDistribution_MeanWithinTolerance(t *testing.T) {
	targets := []float64{1.5, 3, 8, 25, 50, 120}
	for _, target := range targets {
		dist, err := CalibrateEpisodeDistribution(target, 1, supportHi(target))
		require.NoError(t, err, "target=%v", target)
		assert.InDelta(t, target, dist.Mean(), meanTolerance, "target=%v", target)
	}
}

func TestCalibrateEpisodeDistribution_DegenerateTarget(t *testing.T) {
	// Цель меньше 1 удара поднимается до вырожденного одноударного
	// эпизода: среднее прижимается к нижней границе носителя
	dist, err := CalibrateEpisodeDistribution(0.3, 1, 30)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, dist.Mean(), meanTolerance)
}

func TestCalibrateEpisodeDistribution_TargetBelowSupport(t *testing.T) {
	// Цель ниже нижней границы носителя поднимается до неё
	dist, err := CalibrateEpisodeDistribution(2, 3, 40)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, dist.Mean(), meanTolerance)
}

func TestCalibrateEpisodeDistribution_InvalidSupport(t *testing.T) {
	_, err := CalibrateEpisodeDistribution(5, 0, 10)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = CalibrateEpisodeDistribution(5, 10, 10)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	// Цель за верхней границей носителя недостижима
	_, err = CalibrateEpisodeDistribution(50, 1, 20)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestEpisodeDistribution_SampleInSupport(t *testing.T) {
	dist, err := CalibrateEpisodeDistribution(8, 3, 60)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 10000; i++ {
		k := dist.Sample(rng)
		require.GreaterOrEqual(t, k, 3)
		require.LessOrEqual(t, k, 60)
	}
}

func TestEpisodeDistribution_SampleMeanMatchesTarget(t *testing.T) {
	dist, err := CalibrateEpisodeDistribution(12, 1, supportHi(12))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	sum := 0
	const n = 200000
	for i := 0; i < n; i++ {
		sum += dist.Sample(rng)
	}
	// Эмпирическое среднее сходится к калиброванному
	assert.InDelta(t, 12.0, float64(sum)/n, 0.2)
}

func TestEpisodeDistribution_ShorterEpisodesMoreLikely(t *testing.T) {
	dist, err := CalibrateEpisodeDistribution(10, 1, 80)
	require.NoError(t, err)

	// Экспоненциальное затухание: pmf строго убывает по длине
	for k := 1; k < len(dist.pmf); k++ {
		require.Less(t, dist.pmf[k], dist.pmf[k-1], "k=%d", k)
	}
}

func TestFixedSampler(t *testing.T) {
	s := fixedSampler(1)
	assert.Equal(t, 1, s.Sample(nil))
	assert.Equal(t, 1.0, s.Mean())
}
