package sources

import "math/rand"

// AVNodeConfig - параметры модели атриовентрикулярного проведения при
// фибрилляции предсердий
type AVNodeConfig struct {
	MeanRR     float64 // целевой средний интервал RR, сек
	Refractory float64 // рефрактерный период АВ узла, сек
}

// DefaultAVNodeConfig возвращает параметры с фиксированным средним
// 0.765 сек, принятым построителем матрицы переходов
func DefaultAVNodeConfig() AVNodeConfig {
	return AVNodeConfig{
		MeanRR:     0.765,
		Refractory: 0.35,
	}
}

// AVNodeGenerator моделирует желудочковый ответ при ФП: предсердные
// импульсы бомбардируют АВ узел, часть блокируется рефрактерностью,
// интервал RR складывается из рефрактерного пола и случайного числа
// заблокированных волн. Результат - нерегулярная последовательность
// без различимой периодичности.
type AVNodeGenerator struct {
	rand *rand.Rand
	cfg  AVNodeConfig
	// средний интервал между проведёнными волнами, подобран так,
	// чтобы матожидание RR попадало в cfg.MeanRR
	waveMean float64
}

// NewAVNodeGenerator создает генератор с фиксированным seed
func NewAVNodeGenerator(cfg AVNodeConfig, seed int64) *AVNodeGenerator {
	waveMean := (cfg.MeanRR - cfg.Refractory) / 2
	if waveMean <= 0 {
		waveMean = 0.05
	}
	return &AVNodeGenerator{
		rand:     rand.New(rand.NewSource(seed)),
		cfg:      cfg,
		waveMean: waveMean,
	}
}

// Generate возвращает очередные n интервалов
func (g *AVNodeGenerator) Generate(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = g.next()
	}
	return out
}

func (g *AVNodeGenerator) next() float64 {
	// Сумма двух экспоненциальных задержек даёт распределение Эрланга:
	// правый хвост длинный, форма близка к гистограммам RR при ФП
	rr := g.cfg.Refractory +
		g.waveMean*g.rand.ExpFloat64() +
		g.waveMean*g.rand.ExpFloat64()

	// Пол по рефрактерности; фильтр длинных интервалов (>1.8 c)
	// применяет потребитель пула
	if rr < g.cfg.Refractory {
		rr = g.cfg.Refractory
	}
	return rr
}
