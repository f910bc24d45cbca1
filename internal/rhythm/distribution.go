package rhythm

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const (
	// meanTolerance - допустимое отклонение реализованного среднего
	// от целевого, в ударах.
	meanTolerance = 0.01

	// maxCalibrationIters - предел итераций коррекции. Для
	// физиологичных конфигураций схождение занимает единицы итераций.
	maxCalibrationIters = 500
)

// EpisodeSampler выдаёт длину эпизода в ударах.
type EpisodeSampler interface {
	Sample(rng *rand.Rand) int
	Mean() float64
}

// EpisodeDistribution - дискретное распределение длин эпизодов на
// носителе [lo, hi] с экспоненциальным затуханием. Неизменяемо после
// калибровки.
type EpisodeDistribution struct {
	lo, hi int
	pmf    []float64
	cdf    []float64
	mean   float64
}

// CalibrateEpisodeDistribution строит распределение, чьё матожидание
// совпадает с target с точностью meanTolerance. Прямая формула b = 1/d
// не годится: после усечения носителя и ренормировки среднее уходит от
// 1/b, поэтому вспомогательная цель корректируется на величину ошибки
// до схождения.
func CalibrateEpisodeDistribution(target float64, lo, hi int) (*EpisodeDistribution, error) {
	if lo < 1 || hi <= lo {
		return nil, fmt.Errorf("%w: episode support [%d, %d]", ErrInvalidParameter, lo, hi)
	}
	// Вырожденные одноударные эпизоды
	if target < 1 {
		target = 1
	}
	if target < float64(lo) {
		target = float64(lo)
	}
	if target > float64(hi) {
		return nil, fmt.Errorf("%w: target mean %.2f exceeds support upper bound %d", ErrInvalidParameter, target, hi)
	}

	n := hi - lo + 1
	pmf := make([]float64, n)

	aux := target
	for iter := 0; iter < maxCalibrationIters; iter++ {
		if aux <= 0 || math.IsNaN(aux) {
			return nil, fmt.Errorf("%w: calibration diverged for mean %.2f on [%d, %d]", ErrInvalidParameter, target, lo, hi)
		}

		b := 1.0 / aux
		sum := 0.0
		for k := 0; k < n; k++ {
			pmf[k] = math.Exp(-b * float64(lo+k))
			sum += pmf[k]
		}

		mean := 0.0
		for k := 0; k < n; k++ {
			pmf[k] /= sum
			mean += float64(lo+k) * pmf[k]
		}

		diff := target - mean
		if math.Abs(diff) <= meanTolerance {
			return newEpisodeDistribution(lo, hi, pmf, mean), nil
		}
		aux += diff
	}

	return nil, fmt.Errorf("%w: calibration did not converge for mean %.2f on [%d, %d]", ErrInvalidParameter, target, lo, hi)
}

func newEpisodeDistribution(lo, hi int, pmf []float64, mean float64) *EpisodeDistribution {
	cdf := make([]float64, len(pmf))
	acc := 0.0
	for k, p := range pmf {
		acc += p
		cdf[k] = acc
	}
	cdf[len(cdf)-1] = 1.0

	return &EpisodeDistribution{
		lo:   lo,
		hi:   hi,
		pmf:  append([]float64(nil), pmf...),
		cdf:  cdf,
		mean: mean,
	}
}

// Sample возвращает длину эпизода в ударах
func (d *EpisodeDistribution) Sample(rng *rand.Rand) int {
	u := rng.Float64()
	k := sort.SearchFloat64s(d.cdf, u)
	if k >= len(d.cdf) {
		k = len(d.cdf) - 1
	}
	return d.lo + k
}

// Mean возвращает реализованное матожидание длины эпизода
func (d *EpisodeDistribution) Mean() float64 {
	return d.mean
}

// Support возвращает границы носителя
func (d *EpisodeDistribution) Support() (lo, hi int) {
	return d.lo, d.hi
}

// fixedSampler всегда возвращает одну и ту же длину. Используется для
// изолированных экстрасистол (эпизод из одного удара).
type fixedSampler int

func (f fixedSampler) Sample(*rand.Rand) int { return int(f) }
func (f fixedSampler) Mean() float64         { return float64(f) }
