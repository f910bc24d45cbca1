package rhythm

import (
	"math/rand"

	"github.com/Juanpabl/simECG-2022/internal/models"
)

// Константы симуляции. Диапазоны факторов преждевременности
// фиксированы по подтипам и не являются настраиваемыми параметрами.
const (
	// maxAFInterval - отсечка нереалистично длинных интервалов
	// желудочкового ответа при ФП, сек
	maxAFInterval = 1.8

	// minTachyInterval - нижняя граница интервала при тахикардии;
	// более короткие сэмплы пересэмплируются на месте
	minTachyInterval = 0.2

	// Диапазон целевой ЧСС устойчивой тахикардии, уд/мин
	minTachyRate = 100.0
	maxTachyRate = 200.0

	// Множитель локальной синусовой ЧСС для выбора темпа тахикардии
	minTachyRatio = 1.1
	maxTachyRatio = 2.0

	tachyRateRetries = 10

	// Джиттер интервалов внутри эпизода тахикардии
	tachyJitter = 0.05

	// База преждевременности эпизода би/тригеминии и её джиттер
	btBaseLo  = 0.60
	btBaseHi  = 0.80
	btJitter  = 0.05
	afSkipCap = 100
)

// Подтипы предсердных экстрасистол (изолированная тахикардия длиной в
// один удар) и их диапазоны преждевременности
type atrialSubtype int

const (
	atrialCompensatory atrialSubtype = iota // полная компенсаторная пауза
	atrialReset                             // сброс узла, без паузы сверх обычной
	atrialDelayedReset                      // сброс с задержкой
	atrialInterpolated                      // интерполяция, без паузы
)

var atrialPrematurity = [4][2]float64{
	atrialCompensatory: {0.55, 0.75},
	atrialReset:        {0.60, 0.85},
	atrialDelayedReset: {0.65, 0.90},
	atrialInterpolated: {0.75, 0.95},
}

// Подтипы изолированных желудочковых экстрасистол в синусовом ритме
type ventSubtype int

const (
	ventCompensatory    ventSubtype = iota // полная компенсаторная пауза
	ventNonCompensatory                    // неполная пауза
	ventInterpolated                       // интерполяция
)

var ventPrematurity = [3][2]float64{
	ventCompensatory:    {0.55, 0.75},
	ventNonCompensatory: {0.60, 0.85},
	ventInterpolated:    {0.75, 0.95},
}

// Диапазон задержки сброса синусового узла, доля от базового RR
const (
	delayedResetLo = 0.10
	delayedResetHi = 0.30
)

// Диапазон неполной компенсаторной паузы, доля от базового RR
const (
	nonCompPauseLo = 0.05
	nonCompPauseHi = 0.25
)

// Synthesizer порождает интервалы RR и метки ударов по правилам
// активного состояния. Не владеет временем и аннотациями - это зона
// машины состояний.
type Synthesizer struct {
	rng *rand.Rand

	// Нормированные векторы вероятностей подтипов
	atrialProbs [4]float64
	ventProbs   [3]float64
}

// NewSynthesizer создает синтезатор ударов. Векторы вероятностей
// подтипов нормируются автоматически; nil заменяется дефолтом.
func NewSynthesizer(rng *rand.Rand, atrialProbs, ventProbs []float64) *Synthesizer {
	s := &Synthesizer{
		rng:         rng,
		atrialProbs: [4]float64{0.40, 0.25, 0.20, 0.15},
		ventProbs:   [3]float64{0.50, 0.30, 0.20},
	}
	if len(atrialProbs) == 4 {
		copy(s.atrialProbs[:], normalize(atrialProbs))
	}
	if len(ventProbs) == 3 {
		copy(s.ventProbs[:], normalize(ventProbs))
	}
	return s
}

func normalize(probs []float64) []float64 {
	sum := 0.0
	for _, p := range probs {
		if p > 0 {
			sum += p
		}
	}
	out := make([]float64, len(probs))
	if sum == 0 {
		for i := range out {
			out[i] = 1.0 / float64(len(out))
		}
		return out
	}
	for i, p := range probs {
		if p > 0 {
			out[i] = p / sum
		}
	}
	return out
}

// uniform возвращает сэмпл из U(lo, hi)
func (s *Synthesizer) uniform(lo, hi float64) float64 {
	return lo + (hi-lo)*s.rng.Float64()
}

// pickIndex - взвешенный выбор индекса по нормированному вектору
func (s *Synthesizer) pickIndex(probs []float64) int {
	u := s.rng.Float64()
	acc := 0.0
	for i, p := range probs {
		acc += p
		if u < acc {
			return i
		}
	}
	return len(probs) - 1
}

// SinusBeat - очередной удар синусового ритма из пула
func (s *Synthesizer) SinusBeat(ctx *SimulationContext) (float64, models.BeatLabel) {
	return ctx.SinusPool.Next(), models.BeatNormal
}

// AFBeat - удар фибрилляции: интервалы длиннее maxAFInterval
// пропускаются, пул расширяется по требованию
func (s *Synthesizer) AFBeat(ctx *SimulationContext) (float64, models.BeatLabel) {
	for i := 0; i < afSkipCap; i++ {
		if rr := ctx.AFPool.Next(); rr <= maxAFInterval {
			return rr, models.BeatNormal
		}
	}
	// Источник систематически выдаёт выбросы - отдаём средний RR ФП
	return AFMeanRR, models.BeatNormal
}

// AtrialEctopicBeat - изолированная предсердная экстрасистола:
// потребляет текущий синусовый интервал, укорачивает его фактором
// преждевременности подтипа и записывает паузу в следующий слот пула
func (s *Synthesizer) AtrialEctopicBeat(ctx *SimulationContext) (float64, models.BeatLabel) {
	sub := atrialSubtype(s.pickIndex(s.atrialProbs[:]))
	span := atrialPrematurity[sub]

	rr0 := ctx.SinusPool.Next()
	rr := s.uniform(span[0], span[1]) * rr0

	switch sub {
	case atrialCompensatory:
		ctx.SinusPool.SetCurrent(2*rr0 - rr)
	case atrialDelayedReset:
		ctx.SinusPool.SetCurrent(rr0 * (1 + s.uniform(delayedResetLo, delayedResetHi)))
	case atrialInterpolated:
		// Без клампа: у верхней границы преждевременности пауза
		// уходит к нулю, как в исходной модели
		ctx.SinusPool.SetCurrent(rr0 - rr)
	case atrialReset:
		// Узел сброшен, следующий слот не трогаем
	}

	return rr, models.BeatAtrialEctopic
}

// VentricularEctopicBeat - изолированная ЖЭ в синусовом ритме, та же
// алгебра пауз, что и у предсердных подтипов, но подтипов три
func (s *Synthesizer) VentricularEctopicBeat(ctx *SimulationContext) (float64, models.BeatLabel) {
	sub := ventSubtype(s.pickIndex(s.ventProbs[:]))
	span := ventPrematurity[sub]

	rr0 := ctx.SinusPool.Next()
	rr := s.uniform(span[0], span[1]) * rr0

	switch sub {
	case ventCompensatory:
		ctx.SinusPool.SetCurrent(2*rr0 - rr)
	case ventNonCompensatory:
		ctx.SinusPool.SetCurrent(rr0 * (1 + s.uniform(nonCompPauseLo, nonCompPauseHi)))
	case ventInterpolated:
		ctx.SinusPool.SetCurrent(rr0 - rr)
	}

	return rr, models.BeatVentricularEctopic
}

// BeginTachycardiaEpisode выбирает темп устойчивого эпизода
// тахикардии: 1.1-2.0x локальной синусовой ЧСС, с повторами против
// коридора [100, 200] уд/мин, иначе равномерный пересэмпл. Первый удар
// преждевременный, в синусовый пул ставится пауза отложенного сброса.
func (s *Synthesizer) BeginTachycardiaEpisode(ctx *SimulationContext) (float64, models.BeatLabel) {
	rr0 := ctx.SinusPool.Next()
	localRate := 60.0 / rr0

	target := 0.0
	ok := false
	for i := 0; i < tachyRateRetries; i++ {
		target = localRate * s.uniform(minTachyRatio, maxTachyRatio)
		if target >= minTachyRate && target <= maxTachyRate {
			ok = true
			break
		}
	}
	if !ok {
		target = s.uniform(minTachyRate, maxTachyRate)
	}

	base := 60.0 / target
	ctx.ATBaseRR = base
	ctx.SinusPool.SetCurrent(rr0 * (1 + s.uniform(delayedResetLo, delayedResetHi)))

	return base, models.BeatAtrialEctopic
}

// TachycardiaBeat - последующий удар эпизода: база с равномерным
// джиттером ±5%, сэмплы короче 0.2 с пересэмплируются на месте
func (s *Synthesizer) TachycardiaBeat(ctx *SimulationContext) (float64, models.BeatLabel) {
	for {
		rr := ctx.ATBaseRR * (1 + s.uniform(-tachyJitter, tachyJitter))
		if rr >= minTachyInterval {
			return rr, models.BeatNormal
		}
	}
}

// btKind - вид эпизода би/тригеминии
type btKind int

const (
	kindBigeminy btKind = iota
	kindTrigeminy
)

// period возвращает длину паттерна: нормальный удар плюс 1 или 2 ЖЭ
func (k btKind) period() int {
	if k == kindTrigeminy {
		return 3
	}
	return 2
}

// minLength - минимальная длина эпизода в ударах
func (k btKind) minLength() int {
	if k == kindTrigeminy {
		return 6
	}
	return 4
}

// rhythmCode - код ритм-аннотации эпизода
func (k btKind) rhythmCode() models.RhythmCode {
	if k == kindTrigeminy {
		return models.RhythmTrigeminy
	}
	return models.RhythmBigeminy
}

// PickBTKind - монетка бигеминия/тригеминия при входе в эпизод
func (s *Synthesizer) PickBTKind() btKind {
	if s.rng.Float64() < 0.5 {
		return kindBigeminy
	}
	return kindTrigeminy
}

// btEpisode хранит пер-эпизодную базу преждевременности и чередование
type btEpisode struct {
	kind      btKind
	base      float64
	lastSinus float64
}

// BeginBTEpisode фиксирует базу преждевременности эпизода
func (s *Synthesizer) BeginBTEpisode(kind btKind) *btEpisode {
	return &btEpisode{
		kind: kind,
		base: s.uniform(btBaseLo, btBaseHi),
	}
}

// BTBeat - удар эпизода би/тригеминии: позиции кратные периоду -
// синусовые, остальные - ЖЭ с базой эпизода и поударным джиттером;
// следующий синусовый слот замещается полной компенсаторной паузой
func (s *Synthesizer) BTBeat(ctx *SimulationContext, ep *btEpisode, pos int) (float64, models.BeatLabel) {
	if pos%ep.kind.period() == 0 {
		ep.lastSinus = ctx.SinusPool.Next()
		return ep.lastSinus, models.BeatNormal
	}

	k := ep.base + s.uniform(-btJitter, btJitter)
	rr := k * ep.lastSinus
	ctx.SinusPool.SetCurrent(2*ep.lastSinus - rr)
	return rr, models.BeatVentricularEctopic
}

// VPBInTachycardiaBeat - ЖЭ на фоне тахикардии: интервал активного
// эпизода тахикардии без модификации
func (s *Synthesizer) VPBInTachycardiaBeat(ctx *SimulationContext) (float64, models.BeatLabel) {
	rr := ctx.ATBaseRR
	if rr <= 0 {
		rr = ctx.SinusPool.Current()
	}
	return rr, models.BeatVentricularEctopic
}

// VPBInFibrillationBeat - ЖЭ на фоне фибрилляции: очередной интервал
// пула ФП без модификации, с тем же фильтром выбросов
func (s *Synthesizer) VPBInFibrillationBeat(ctx *SimulationContext) (float64, models.BeatLabel) {
	rr, _ := s.AFBeat(ctx)
	return rr, models.BeatVentricularEctopic
}
