package rhythm

import (
	"github.com/Juanpabl/simECG-2022/internal/models"
	"github.com/Juanpabl/simECG-2022/internal/sources"
)

// SimulationContext - изменяемые счётчики одного прогона. Владелец -
// машина состояний; никакой другой компонент контекст не мутирует.
// Пулы потребляются строго по порядку, поэтому запись компенсаторных
// пауз в будущие слоты всегда опережает их потребление.
type SimulationContext struct {
	// TimeMS - накопленное симулированное время
	TimeMS int64

	// SinusPool читается всеми ветвями как базовая линия и
	// переписывается ветвями экстрасистол (паузы в будущих слотах)
	SinusPool *sources.Pool

	// AFPool - интервалы модели АВ узла
	AFPool *sources.Pool

	// PrevState - предыдущее состояние цепи, для спецобработки
	// самопереходов AT->AT
	PrevState models.RhythmState

	// ATBaseRR - базовый интервал активного эпизода тахикардии,
	// используется подсостоянием ЖЭ-в-тахикардии
	ATBaseRR float64

	// Счётчики по состояниям
	BeatsPerState [models.NumRhythmStates]int
	TimePerState  [models.NumRhythmStates]int64
}

// NewSimulationContext создает контекст прогона
func NewSimulationContext(sinusPool, afPool *sources.Pool) *SimulationContext {
	return &SimulationContext{
		SinusPool: sinusPool,
		AFPool:    afPool,
		PrevState: models.SinusRhythm,
	}
}

// CountBeat учитывает удар в счётчиках состояния
func (c *SimulationContext) CountBeat(s models.RhythmState, ms int64) {
	c.BeatsPerState[s]++
	c.TimePerState[s] += ms
}
