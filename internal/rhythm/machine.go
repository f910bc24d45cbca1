package rhythm

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/Juanpabl/simECG-2022/internal/models"
	"github.com/Juanpabl/simECG-2022/internal/sources"
)

// Params - конфигурация движка ритма. Проверяется целиком до начала
// симуляции: начатый прогон не возвращает ошибок.
type Params struct {
	// Нагрузки ритмов, доли общего времени в [0, 1]
	AFBurden  float64
	ATBurden  float64
	BTBurden  float64
	VPBBurden float64

	// Средние длины эпизодов в ударах, минимум 1
	AFMeanEpisodeBeats float64
	ATMeanEpisodeBeats float64
	BTMeanEpisodeBeats float64

	// Средняя синусовая ЧСС, уд/мин
	MeanHeartRate float64

	// Средний интервал RR тахикардии для расчёта матрицы, сек
	ATMeanRR float64

	// Подсостояния ЖЭ внутри тахикардии и фибрилляции
	VPBInAT bool
	VPBInAF bool

	// Векторы вероятностей подтипов экстрасистол (длины 4 и 3),
	// нормируются автоматически; nil - дефолтные
	AtrialSubtypeProbs []float64
	VentSubtypeProbs   []float64

	// Целевая длительность сигнала, сек
	SignalLengthSec float64

	// Seed генератора случайности; 0 - от текущего времени
	Seed int64
}

func (p *Params) applyDefaults() {
	if p.MeanHeartRate == 0 {
		p.MeanHeartRate = 60
	}
	if p.ATMeanRR == 0 {
		p.ATMeanRR = 0.4 // 150 уд/мин
	}
	// Минимальные длины эпизодов
	if p.AFMeanEpisodeBeats < 1 {
		p.AFMeanEpisodeBeats = 1
	}
	if p.ATMeanEpisodeBeats < 1 {
		p.ATMeanEpisodeBeats = 1
	}
	if p.BTMeanEpisodeBeats < 1 {
		p.BTMeanEpisodeBeats = 1
	}
	if p.Seed == 0 {
		p.Seed = time.Now().UnixNano()
	}
}

// Engine - машина состояний ритма: ведёт марковскую цепь вперёд по
// времени, вызывает синтезатор для активного состояния и накапливает
// интервалы, метки и аннотации до исчерпания бюджета времени.
type Engine struct {
	params  Params
	matrix  *TransitionMatrix
	derived *MatrixDerived

	sinusDist *EpisodeDistribution
	afDist    *EpisodeDistribution
	btDist    *EpisodeDistribution
	atSampler EpisodeSampler

	synth     *Synthesizer
	sinusPool *sources.Pool
	afPool    *sources.Pool
	rng       *rand.Rand
}

// NewEngine собирает движок: валидирует параметры, строит матрицу
// переходов и калибрует распределения длин эпизодов. Пулы и сэмплер
// тахикардии могут быть nil - тогда строятся синтетические источники
// и распределение, откалиброванное по средней длине эпизода AT.
func NewEngine(p Params, sinusPool, afPool *sources.Pool, atSampler EpisodeSampler) (*Engine, error) {
	p.applyDefaults()

	if p.MeanHeartRate < 40 || p.MeanHeartRate > 200 {
		return nil, fmt.Errorf("%w: mean heart rate %.1f outside [40, 200]", ErrInvalidParameter, p.MeanHeartRate)
	}
	if p.SignalLengthSec <= 0 {
		return nil, fmt.Errorf("%w: signal length %.1f s", ErrInvalidParameter, p.SignalLengthSec)
	}

	sinusRR := 60.0 / p.MeanHeartRate

	matrix, derived, err := BuildTransitionMatrix(MatrixParams{
		AFBurden:     p.AFBurden,
		ATBurden:     p.ATBurden,
		BTBurden:     p.BTBurden,
		VPBBurden:    p.VPBBurden,
		AFMeanBeats:  p.AFMeanEpisodeBeats,
		ATMeanBeats:  p.ATMeanEpisodeBeats,
		BTMeanBeats:  p.BTMeanEpisodeBeats,
		SinusMeanRR:  sinusRR,
		ATMeanRR:     p.ATMeanRR,
		BTMeanRR:     sinusRR,
		VPBInAT:      p.VPBInAT,
		VPBInAF:      p.VPBInAF,
		TotalSeconds: p.SignalLengthSec,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		params:  p,
		matrix:  matrix,
		derived: derived,
		rng:     rand.New(rand.NewSource(p.Seed)),
	}
	e.synth = NewSynthesizer(e.rng, p.AtrialSubtypeProbs, p.VentSubtypeProbs)

	if derived.SinusBurden > 0 {
		e.sinusDist, err = CalibrateEpisodeDistribution(
			derived.SinusMeanBeats, 1, supportHi(derived.SinusMeanBeats))
		if err != nil {
			return nil, err
		}
	}
	if p.AFBurden > 0 {
		e.afDist, err = CalibrateEpisodeDistribution(
			p.AFMeanEpisodeBeats, 1, supportHi(p.AFMeanEpisodeBeats))
		if err != nil {
			return nil, err
		}
	}
	if p.BTBurden > 0 {
		// Смещение к минимуму в 3 удара
		target := p.BTMeanEpisodeBeats
		if target < 3 {
			target = 3
		}
		e.btDist, err = CalibrateEpisodeDistribution(target, 3, supportHi(target))
		if err != nil {
			return nil, err
		}
	}

	e.atSampler = atSampler
	if e.atSampler == nil && p.ATBurden > 0 {
		e.atSampler, err = CalibrateEpisodeDistribution(
			p.ATMeanEpisodeBeats, 1, supportHi(p.ATMeanEpisodeBeats))
		if err != nil {
			return nil, err
		}
	}

	initial := int(p.SignalLengthSec/sinusRR) + 64
	e.sinusPool = sinusPool
	if e.sinusPool == nil {
		e.sinusPool = sources.NewPool(
			sources.NewSinusGenerator(sources.DefaultSinusConfig(p.MeanHeartRate), p.Seed), initial)
	}
	e.afPool = afPool
	if e.afPool == nil {
		e.afPool = sources.NewPool(
			sources.NewAVNodeGenerator(sources.DefaultAVNodeConfig(), p.Seed+1), initial)
	}

	return e, nil
}

// Matrix возвращает построенную матрицу переходов
func (e *Engine) Matrix() *TransitionMatrix {
	return e.matrix
}

// Derived возвращает производные величины построителя матрицы
func (e *Engine) Derived() *MatrixDerived {
	return e.derived
}

// episode - результат синтеза одного эпизода
type episode struct {
	rr     []float64
	labels []models.BeatLabel
	// code пуст для эпизодов, не меняющих категорию ритма
	// (изолированные экстрасистолы)
	code models.RhythmCode
}

// Run выполняет один проход симуляции. Внешние границы цикла -
// только бюджет времени; последний частичный эпизод обрезается.
func (e *Engine) Run() (*models.SimulationResult, error) {
	budgetMS := int64(math.Round(e.params.SignalLengthSec * 1000))
	ctx := NewSimulationContext(e.sinusPool, e.afPool)

	var (
		rrs    []float64
		labels []models.BeatLabel
		states []models.RhythmState
		anns   []models.AnnotationEvent
	)

	state := e.derived.StartState
	lastRhythm := models.RhythmCode("")
	first := true

	for ctx.TimeMS <= budgetMS {
		next := state
		if !first {
			next = e.drawNext(state)
			// Самопереход AT->AT пропускает один слот синусового
			// пула: иначе паузa отложенного сброса предыдущего
			// эпизода даёт искусственно короткий интервал
			if state == models.AtrialTachycardia && next == models.AtrialTachycardia {
				ctx.SinusPool.Skip(1)
			}
		}

		ep := e.runEpisode(ctx, next)

		for i := range ep.rr {
			ms := int64(math.Round(ep.rr[i] * 1000))

			if i == 0 && ep.code != "" && ep.code != lastRhythm {
				// Смена ритма датируется серединой первого
				// интервала эпизода
				anns = append(anns, models.AnnotationEvent{
					TimestampMS: ctx.TimeMS + ms/2,
					RhythmCode:  ep.code,
				})
				lastRhythm = ep.code
			}

			anns = append(anns, models.AnnotationEvent{
				TimestampMS: ctx.TimeMS + ms,
				BeatCode:    ep.labels[i].Code(),
			})

			rrs = append(rrs, ep.rr[i])
			labels = append(labels, ep.labels[i])
			states = append(states, next)

			ctx.TimeMS += ms
			ctx.CountBeat(next, ms)
		}

		ctx.PrevState = state
		state = next
		first = false
	}

	result := &models.SimulationResult{
		RR:           rrs,
		Labels:       labels,
		StateHistory: states,
		Annotations:  anns,
	}
	trimToBudget(result, budgetMS)
	result.Stats = computeStats(result)

	return result, result.Validate()
}

// drawNext - категориальный выбор следующего состояния напрямую по
// строке текущего
func (e *Engine) drawNext(state models.RhythmState) models.RhythmState {
	row := e.matrix.Row(state)
	u := e.rng.Float64()
	acc := 0.0
	for j, p := range row {
		acc += p
		if p > 0 && u < acc {
			return models.RhythmState(j)
		}
	}
	// Нулевая строка: состояние поглощающее
	return state
}

// runEpisode синтезирует один эпизод состояния
func (e *Engine) runEpisode(ctx *SimulationContext, state models.RhythmState) episode {
	switch state {
	case models.AtrialFibrillation:
		return e.fibrillationEpisode(ctx)
	case models.AtrialTachycardia:
		return e.tachycardiaEpisode(ctx)
	case models.BigeminyTrigeminy:
		return e.btEpisodeRun(ctx)
	case models.VpbInSinus:
		return singleBeat(e.synth.VentricularEctopicBeat(ctx))
	case models.VpbInTachycardia:
		return singleBeat(e.synth.VPBInTachycardiaBeat(ctx))
	case models.VpbInFibrillation:
		return singleBeat(e.synth.VPBInFibrillationBeat(ctx))
	default:
		return e.sinusEpisode(ctx)
	}
}

func singleBeat(rr float64, label models.BeatLabel) episode {
	return episode{
		rr:     []float64{rr},
		labels: []models.BeatLabel{label},
	}
}

func (e *Engine) sinusEpisode(ctx *SimulationContext) episode {
	length := 1
	if e.sinusDist != nil {
		length = e.sinusDist.Sample(e.rng)
	}
	ep := episode{code: models.RhythmSinus}
	for i := 0; i < length; i++ {
		rr, label := e.synth.SinusBeat(ctx)
		ep.rr = append(ep.rr, rr)
		ep.labels = append(ep.labels, label)
	}
	return ep
}

func (e *Engine) fibrillationEpisode(ctx *SimulationContext) episode {
	length := 1
	if e.afDist != nil {
		length = e.afDist.Sample(e.rng)
	}
	ep := episode{code: models.RhythmAFib}
	for i := 0; i < length; i++ {
		rr, label := e.synth.AFBeat(ctx)
		ep.rr = append(ep.rr, rr)
		ep.labels = append(ep.labels, label)
	}
	return ep
}

func (e *Engine) tachycardiaEpisode(ctx *SimulationContext) episode {
	length := 1
	if e.atSampler != nil {
		length = e.atSampler.Sample(e.rng)
	}

	// Эпизод длиной 1 - изолированная предсердная экстрасистола,
	// категорию ритма не меняет
	if length <= 1 {
		return singleBeat(e.synth.AtrialEctopicBeat(ctx))
	}

	ep := episode{code: models.RhythmSVTA}
	rr, label := e.synth.BeginTachycardiaEpisode(ctx)
	ep.rr = append(ep.rr, rr)
	ep.labels = append(ep.labels, label)
	for i := 1; i < length; i++ {
		rr, label = e.synth.TachycardiaBeat(ctx)
		ep.rr = append(ep.rr, rr)
		ep.labels = append(ep.labels, label)
	}
	return ep
}

func (e *Engine) btEpisodeRun(ctx *SimulationContext) episode {
	kind := e.synth.PickBTKind()
	length := kind.minLength()
	if e.btDist != nil {
		length = e.btDist.Sample(e.rng)
	}
	length = normalizeBTLength(length, kind)

	ep := episode{code: kind.rhythmCode()}
	run := e.synth.BeginBTEpisode(kind)
	for i := 0; i < length; i++ {
		rr, label := e.synth.BTBeat(ctx, run, i)
		ep.rr = append(ep.rr, rr)
		ep.labels = append(ep.labels, label)
	}
	return ep
}

// normalizeBTLength поднимает длину эпизода до минимума вида и
// выравнивает по чётности паттерна, чтобы эпизод заканчивался полной
// группой
func normalizeBTLength(length int, kind btKind) int {
	if length < kind.minLength() {
		length = kind.minLength()
	}
	period := kind.period()
	if rem := length % period; rem != 0 {
		length += period - rem
	}
	return length
}

// trimToBudget отбрасывает удары, чьё накопленное время выходит за
// бюджет, и аннотации после последнего оставленного удара
func trimToBudget(r *models.SimulationResult, budgetMS int64) {
	var t int64
	cut := len(r.RR)
	for i := range r.RR {
		ms := int64(math.Round(r.RR[i] * 1000))
		if t+ms > budgetMS {
			cut = i
			break
		}
		t += ms
	}

	r.RR = r.RR[:cut]
	r.Labels = r.Labels[:cut]
	r.StateHistory = r.StateHistory[:cut]

	kept := r.Annotations[:0]
	for _, a := range r.Annotations {
		if a.TimestampMS <= t {
			kept = append(kept, a)
		}
	}
	r.Annotations = kept
}

// computeStats собирает счётчики по оставленным ударам
func computeStats(r *models.SimulationResult) models.RunStats {
	stats := models.RunStats{
		TotalBeats:     len(r.RR),
		BeatsPerState:  make(map[string]int),
		RealizedBurden: make(map[string]float64),
	}

	var timePerState [models.NumRhythmStates]int64
	var total int64
	for i, rr := range r.RR {
		ms := int64(math.Round(rr * 1000))
		timePerState[r.StateHistory[i]] += ms
		total += ms
	}
	stats.DurationMS = total

	for s := models.RhythmState(0); s < models.NumRhythmStates; s++ {
		beats := 0
		for i := range r.StateHistory {
			if r.StateHistory[i] == s {
				beats++
			}
		}
		if beats == 0 {
			continue
		}
		stats.BeatsPerState[s.String()] = beats
		if total > 0 {
			stats.RealizedBurden[s.String()] = float64(timePerState[s]) / float64(total)
		}
	}
	return stats
}

// supportHi - верхняя граница носителя распределения длин: хвост
// экспоненты за 8 средними пренебрежим
func supportHi(mean float64) int {
	hi := int(mean*8) + 20
	if hi < 30 {
		hi = 30
	}
	return hi
}
