package sources

import (
	"math"
	"math/rand"
)

// Физиологические пределы синусового интервала RR, секунды
const (
	minSinusRR = 0.33 // ~180 уд/мин
	maxSinusRR = 2.0  // ~30 уд/мин
)

// SinusConfig - параметры генератора синусового ритма
type SinusConfig struct {
	MeanRR      float64 // средний интервал RR, сек
	Variability float64 // амплитуда дыхательной модуляции, доля от MeanRR
	NoiseSigma  float64 // сигма аддитивного шума, доля от MeanRR
	RespRate    float64 // частота дыхания, Гц
}

// DefaultSinusConfig возвращает параметры для заданной ЧСС (уд/мин)
func DefaultSinusConfig(heartRate float64) SinusConfig {
	return SinusConfig{
		MeanRR:      60.0 / heartRate,
		Variability: 0.04,
		NoiseSigma:  0.02,
		RespRate:    0.25,
	}
}

// SinusGenerator порождает интервалы RR синусового ритма: базовое
// значение с медленным дрейфом, дыхательная (RSA) модуляция и шум.
type SinusGenerator struct {
	rand  *rand.Rand
	cfg   SinusConfig
	base  float64 // текущее базовое значение с учётом дрейфа
	phase float64 // фаза дыхательного цикла
}

// NewSinusGenerator создает генератор с фиксированным seed
func NewSinusGenerator(cfg SinusConfig, seed int64) *SinusGenerator {
	return &SinusGenerator{
		rand: rand.New(rand.NewSource(seed)),
		cfg:  cfg,
		base: cfg.MeanRR,
	}
}

// Generate возвращает очередные n интервалов
func (g *SinusGenerator) Generate(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = g.next()
	}
	return out
}

func (g *SinusGenerator) next() float64 {
	// Медленный дрейф базы с возвратом к среднему
	drift := 0.002 * g.cfg.MeanRR * g.rand.NormFloat64()
	g.base += drift + 0.05*(g.cfg.MeanRR-g.base)

	// Дыхательная модуляция: фаза продвигается на один сердечный цикл
	g.phase += g.cfg.RespRate * g.base
	rsa := g.cfg.Variability * g.cfg.MeanRR * math.Sin(2*math.Pi*g.phase)

	rr := g.base + rsa + g.cfg.NoiseSigma*g.cfg.MeanRR*g.rand.NormFloat64()
	return clampRR(rr, minSinusRR, maxSinusRR)
}

func clampRR(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
