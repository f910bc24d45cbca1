package rhythm

import (
	"fmt"

	"github.com/Juanpabl/simECG-2022/internal/models"
)

// AFMeanRR - фиксированный средний интервал RR при фибрилляции
// предсердий, сек. Согласован с DefaultAVNodeConfig.
const AFMeanRR = 0.765

// maxVPBBurden - жёсткий потолок нагрузки экстрасистолией. Выше него
// изолированные ЖЭ перестают быть изолированными.
const maxVPBBurden = 0.9

// TransitionMatrix - построчно-стохастическая матрица 7x7:
// [i][j] = P(следующее состояние j | текущее i). Строки состояний с
// нулевой нагрузкой нулевые (недостижимые состояния).
type TransitionMatrix [models.NumRhythmStates][models.NumRhythmStates]float64

// Row возвращает строку исходного состояния
func (m *TransitionMatrix) Row(s models.RhythmState) []float64 {
	return m[s][:]
}

// MatrixParams - входы построителя матрицы переходов
type MatrixParams struct {
	// Нагрузки ритмов, доли общего времени в [0, 1]. При сумме > 1
	// нормируются пропорционально (задокументированное ограничение,
	// не ошибка).
	AFBurden  float64
	ATBurden  float64
	BTBurden  float64
	VPBBurden float64

	// Средние длины эпизодов, в ударах
	AFMeanBeats float64
	ATMeanBeats float64
	BTMeanBeats float64

	// Средние интервалы RR, сек. AF использует константу AFMeanRR.
	SinusMeanRR float64
	ATMeanRR    float64
	BTMeanRR    float64

	// Флаги подсостояний ЖЭ внутри тахикардии и фибрилляции
	VPBInAT bool
	VPBInAF bool

	// Общая длительность сигнала, сек
	TotalSeconds float64
}

// MatrixDerived - производные величины, нужные калибровке синусового
// распределения и машине состояний
type MatrixDerived struct {
	SinusBurden    float64
	SinusEpisodes  float64 // ожидаемое число синусовых эпизодов
	SinusMeanBeats float64 // средняя длина синусового эпизода, ударов

	VPBSinusBurden float64
	VPBATBurden    float64
	VPBAFBurden    float64

	// StartState - начальное состояние машины: синус, либо
	// доминантный ритм при нулевой синусовой нагрузке
	StartState models.RhythmState
}

// BuildTransitionMatrix выводит матрицу переходов из нагрузок и
// длительностей. Общее время T разбивается на число эпизодов x средняя
// длина x средний RR по каждой ветви; вероятности выхода из синуса
// пропорциональны ожидаемым числам эпизодов аритмий.
func BuildTransitionMatrix(p MatrixParams) (*TransitionMatrix, *MatrixDerived, error) {
	if err := validateMatrixParams(p); err != nil {
		return nil, nil, err
	}

	bAF, bAT, bBT, bVPB := p.AFBurden, p.ATBurden, p.BTBurden, p.VPBBurden
	if bVPB > maxVPBBurden {
		bVPB = maxVPBBurden
	}

	// Нормировка при превышении единицы
	if sum := bAF + bAT + bBT + bVPB; sum > 1 {
		bAF /= sum
		bAT /= sum
		bBT /= sum
		bVPB /= sum
	}
	bSR := 1 - (bAF + bAT + bBT + bVPB)
	if bSR < 1e-12 {
		bSR = 0
	}

	// Распределение нагрузки ЖЭ по родительским ритмам, с потолками
	// 0.5*B_parent*d_vpb/d_parent, чтобы поддерево ЖЭ не ломало
	// бюджет времени родителя
	vpbSR, vpbAT, vpbAF := splitVPBBurden(p, bSR, bAT, bAF, bVPB)

	// Ожидаемые числа эпизодов по ветвям
	T := p.TotalSeconds
	nAF := episodeCount(T, bAF, p.AFMeanBeats, AFMeanRR)
	nAT := episodeCount(T, bAT, p.ATMeanBeats, p.ATMeanRR)
	nBT := episodeCount(T, bBT, p.BTMeanBeats, p.BTMeanRR)
	nVPBSR := episodeCount(T, vpbSR, 1, p.SinusMeanRR)
	nVPBAT := episodeCount(T, vpbAT, 1, p.ATMeanRR)
	nVPBAF := episodeCount(T, vpbAF, 1, AFMeanRR)

	derived := &MatrixDerived{
		SinusBurden:    bSR,
		VPBSinusBurden: vpbSR,
		VPBATBurden:    vpbAT,
		VPBAFBurden:    vpbAF,
		StartState:     models.SinusRhythm,
	}

	var m TransitionMatrix

	if bSR == 0 {
		// Режим без синуса: матрица концентрируется на доминантном
		// ритме. Приоритет при равенстве - порядок перечисления.
		dom := dominantState(bAF, bAT, bBT, bVPB)
		m[dom][dom] = 1
		derived.StartState = dom
		derived.SinusEpisodes = 0
		derived.SinusMeanBeats = 1
		return &m, derived, nil
	}

	// Каждый эпизод аритмии, возвращающийся в синус, открывает один
	// синусовый эпизод
	nSR := nAF + nAT + nBT + nVPBSR
	if nSR < 1 {
		nSR = 1
	}
	dSR := T * bSR / (nSR * p.SinusMeanRR)
	if dSR < 1 {
		dSR = 1
	}
	derived.SinusEpisodes = nSR
	derived.SinusMeanBeats = dSR

	// Строка синуса: выходы пропорциональны числам эпизодов
	total := nAF + nAT + nBT + nVPBSR
	if total == 0 {
		m[models.SinusRhythm][models.SinusRhythm] = 1
	} else {
		m[models.SinusRhythm][models.AtrialFibrillation] = nAF / total
		m[models.SinusRhythm][models.AtrialTachycardia] = nAT / total
		m[models.SinusRhythm][models.BigeminyTrigeminy] = nBT / total
		m[models.SinusRhythm][models.VpbInSinus] = nVPBSR / total
	}

	// Строки аритмий: возврат в синус, с ответвлением в подсостояние
	// ЖЭ при ненулевой поднагрузке
	if bAF > 0 {
		q := branchProb(nVPBAF, nAF)
		m[models.AtrialFibrillation][models.VpbInFibrillation] = q
		m[models.AtrialFibrillation][models.SinusRhythm] = 1 - q
	}
	if bAT > 0 {
		q := branchProb(nVPBAT, nAT)
		m[models.AtrialTachycardia][models.VpbInTachycardia] = q
		m[models.AtrialTachycardia][models.SinusRhythm] = 1 - q
	}
	if bBT > 0 {
		m[models.BigeminyTrigeminy][models.SinusRhythm] = 1
	}

	// Изолированные ЖЭ всегда возвращаются в родительский ритм
	if vpbSR > 0 {
		m[models.VpbInSinus][models.SinusRhythm] = 1
	}
	if vpbAT > 0 {
		m[models.VpbInTachycardia][models.AtrialTachycardia] = 1
	}
	if vpbAF > 0 {
		m[models.VpbInFibrillation][models.AtrialFibrillation] = 1
	}

	return &m, derived, nil
}

func validateMatrixParams(p MatrixParams) error {
	for _, b := range []struct {
		name string
		v    float64
	}{
		{"af_burden", p.AFBurden},
		{"at_burden", p.ATBurden},
		{"bt_burden", p.BTBurden},
		{"vpb_burden", p.VPBBurden},
	} {
		if b.v < 0 || b.v > 1 {
			return fmt.Errorf("%w: %s=%.3f outside [0, 1]", ErrInvalidParameter, b.name, b.v)
		}
	}
	if p.TotalSeconds <= 0 {
		return fmt.Errorf("%w: total duration %.1f s", ErrInvalidParameter, p.TotalSeconds)
	}
	if p.SinusMeanRR <= 0 || p.ATMeanRR <= 0 || p.BTMeanRR <= 0 {
		return fmt.Errorf("%w: mean RR must be positive", ErrInvalidParameter)
	}
	if p.AFMeanBeats < 1 || p.ATMeanBeats < 1 || p.BTMeanBeats < 1 {
		return fmt.Errorf("%w: mean episode duration below 1 beat", ErrInvalidParameter)
	}
	return nil
}

// splitVPBBurden делит нагрузку ЖЭ между синусом и включёнными
// родительскими ритмами пропорционально их нагрузкам; избыток сверх
// потолка возвращается в синусовую долю
func splitVPBBurden(p MatrixParams, bSR, bAT, bAF, bVPB float64) (vpbSR, vpbAT, vpbAF float64) {
	if bVPB == 0 {
		return 0, 0, 0
	}

	wSR := bSR
	wAT, wAF := 0.0, 0.0
	if p.VPBInAT && bAT > 0 {
		wAT = bAT
	}
	if p.VPBInAF && bAF > 0 {
		wAF = bAF
	}
	wTotal := wSR + wAT + wAF
	if wTotal == 0 {
		return bVPB, 0, 0
	}

	vpbAT = bVPB * wAT / wTotal
	vpbAF = bVPB * wAF / wTotal

	if limit := 0.5 * bAT / p.ATMeanBeats; vpbAT > limit {
		vpbAT = limit
	}
	if limit := 0.5 * bAF / p.AFMeanBeats; vpbAF > limit {
		vpbAF = limit
	}

	vpbSR = bVPB - vpbAT - vpbAF
	return vpbSR, vpbAT, vpbAF
}

// episodeCount - ожидаемое число эпизодов: T*B / (d*rr)
func episodeCount(total, burden, meanBeats, meanRR float64) float64 {
	if burden == 0 {
		return 0
	}
	return total * burden / (meanBeats * meanRR)
}

// branchProb - вероятность ответвления в подсостояние ЖЭ после
// эпизода родительского ритма, с потолком 0.5
func branchProb(nSub, nParent float64) float64 {
	if nParent == 0 || nSub == 0 {
		return 0
	}
	q := nSub / nParent
	if q > 0.5 {
		q = 0.5
	}
	return q
}

// dominantState выбирает ритм с наибольшей нагрузкой; при равенстве
// побеждает перечисленный первым
func dominantState(bAF, bAT, bBT, bVPB float64) models.RhythmState {
	best := models.AtrialFibrillation
	bestBurden := bAF
	if bAT > bestBurden {
		best, bestBurden = models.AtrialTachycardia, bAT
	}
	if bBT > bestBurden {
		best, bestBurden = models.BigeminyTrigeminy, bBT
	}
	if bVPB > bestBurden {
		best = models.VpbInSinus
	}
	return best
}
