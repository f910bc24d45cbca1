package rhythm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juanpabl/simECG-2022/internal/models"
)

func baseMatrixParams() MatrixParams {
	return MatrixParams{
		AFMeanBeats:  50,
		ATMeanBeats:  8,
		BTMeanBeats:  10,
		SinusMeanRR:  1.0,
		ATMeanRR:     0.4,
		BTMeanRR:     1.0,
		TotalSeconds: 1800,
	}
}

// Строки достижимых состояний суммируются в 1, недостижимых - в 0
func assertRowStochastic(t *testing.T, m *TransitionMatrix) {
	t.Helper()
	for i := 0; i < models.NumRhythmStates; i++ {
		sum := 0.0
		for j := 0; j < models.NumRhythmStates; j++ {
			require.GreaterOrEqual(t, m[i][j], 0.0, "m[%d][%d]", i, j)
			sum += m[i][j]
		}
		if sum != 0 {
			assert.InDelta(t, 1.0, sum, 1e-9, "row %d", i)
		}
	}
}

func TestBuildTransitionMatrix_RowsStochastic(t *testing.T) {
	p := baseMatrixParams()
	p.AFBurden = 0.2
	p.ATBurden = 0.1
	p.BTBurden = 0.05
	p.VPBBurden = 0.1
	p.VPBInAT = true
	p.VPBInAF = true

	m, derived, err := BuildTransitionMatrix(p)
	require.NoError(t, err)
	assertRowStochastic(t, m)
	assert.Equal(t, models.SinusRhythm, derived.StartState)
	assert.InDelta(t, 0.55, derived.SinusBurden, 1e-9)
}

func TestBuildTransitionMatrix_ZeroBurdenRowsZero(t *testing.T) {
	p := baseMatrixParams()
	p.AFBurden = 0.3

	m, _, err := BuildTransitionMatrix(p)
	require.NoError(t, err)

	// Отключённые ритмы недостижимы: их строки и входящие
	// вероятности нулевые
	for _, s := range []models.RhythmState{
		models.AtrialTachycardia,
		models.BigeminyTrigeminy,
		models.VpbInSinus,
		models.VpbInTachycardia,
		models.VpbInFibrillation,
	} {
		for j := 0; j < models.NumRhythmStates; j++ {
			assert.Zero(t, m[s][j], "row %v", s)
			assert.Zero(t, m[j][s], "col %v", s)
		}
	}
	assert.Equal(t, 1.0, m[models.AtrialFibrillation][models.SinusRhythm])
}

func TestBuildTransitionMatrix_NormalizesOverUnitSum(t *testing.T) {
	p := baseMatrixParams()
	p.AFBurden = 0.6
	p.ATBurden = 0.6

	m, derived, err := BuildTransitionMatrix(p)
	require.NoError(t, err)
	assertRowStochastic(t, m)

	// Сумма 1.2 нормирована к 1: синусовой доли не остаётся
	assert.Zero(t, derived.SinusBurden)
}

func TestBuildTransitionMatrix_PureSinus(t *testing.T) {
	p := baseMatrixParams()

	m, derived, err := BuildTransitionMatrix(p)
	require.NoError(t, err)

	assert.Equal(t, 1.0, m[models.SinusRhythm][models.SinusRhythm])
	assert.Equal(t, models.SinusRhythm, derived.StartState)
	assert.Equal(t, 1.0, derived.SinusBurden)
}

func TestBuildTransitionMatrix_SinusFreeConcentrates(t *testing.T) {
	p := baseMatrixParams()
	p.AFBurden = 1.0

	m, derived, err := BuildTransitionMatrix(p)
	require.NoError(t, err)

	assert.Equal(t, 1.0, m[models.AtrialFibrillation][models.AtrialFibrillation])
	assert.Equal(t, models.AtrialFibrillation, derived.StartState)
	assert.Zero(t, derived.SinusBurden)
	assertRowStochastic(t, m)
}

func TestBuildTransitionMatrix_SinusFreeTieBreak(t *testing.T) {
	// При равных нагрузках доминирует ритм, перечисленный первым
	p := baseMatrixParams()
	p.AFBurden = 0.5
	p.ATBurden = 0.5

	_, derived, err := BuildTransitionMatrix(p)
	require.NoError(t, err)
	assert.Equal(t, models.AtrialFibrillation, derived.StartState)
}

func TestBuildTransitionMatrix_VPBBurdenClamped(t *testing.T) {
	p := baseMatrixParams()
	p.VPBBurden = 0.97

	_, derived, err := BuildTransitionMatrix(p)
	require.NoError(t, err)

	// Нагрузка ЖЭ прижата к потолку 0.9, остаток уходит синусу
	assert.InDelta(t, 0.1, derived.SinusBurden, 1e-9)
	assert.InDelta(t, 0.9, derived.VPBSinusBurden, 1e-9)
}

func TestBuildTransitionMatrix_VPBSubBurdenCaps(t *testing.T) {
	p := baseMatrixParams()
	p.ATBurden = 0.4
	p.VPBBurden = 0.4
	p.VPBInAT = true

	_, derived, err := BuildTransitionMatrix(p)
	require.NoError(t, err)

	// Поднагрузка ЖЭ-в-тахикардии не превышает 0.5*B_at/d_at
	limit := 0.5 * 0.4 / p.ATMeanBeats
	assert.LessOrEqual(t, derived.VPBATBurden, limit+1e-12)
	// Избыток возвращён в синусовую долю
	assert.InDelta(t, 0.4, derived.VPBSinusBurden+derived.VPBATBurden, 1e-9)
}

func TestBuildTransitionMatrix_BranchProbCapped(t *testing.T) {
	p := baseMatrixParams()
	p.AFBurden = 0.3
	p.VPBBurden = 0.5
	p.VPBInAF = true

	m, _, err := BuildTransitionMatrix(p)
	require.NoError(t, err)

	q := m[models.AtrialFibrillation][models.VpbInFibrillation]
	assert.LessOrEqual(t, q, 0.5)
	assert.InDelta(t, 1.0, q+m[models.AtrialFibrillation][models.SinusRhythm], 1e-9)
}

func TestBuildTransitionMatrix_VPBSubStatesReturnToParent(t *testing.T) {
	p := baseMatrixParams()
	p.AFBurden = 0.2
	p.ATBurden = 0.2
	p.VPBBurden = 0.2
	p.VPBInAT = true
	p.VPBInAF = true

	m, _, err := BuildTransitionMatrix(p)
	require.NoError(t, err)

	assert.Equal(t, 1.0, m[models.VpbInSinus][models.SinusRhythm])
	assert.Equal(t, 1.0, m[models.VpbInTachycardia][models.AtrialTachycardia])
	assert.Equal(t, 1.0, m[models.VpbInFibrillation][models.AtrialFibrillation])
}

func TestBuildTransitionMatrix_SinusExitProportionalToEpisodeCounts(t *testing.T) {
	p := baseMatrixParams()
	p.AFBurden = 0.2
	p.ATBurden = 0.2

	m, _, err := BuildTransitionMatrix(p)
	require.NoError(t, err)

	// Одинаковая нагрузка, но эпизоды AT короче и быстрее: их
	// ожидаемое число больше, значит выход в AT вероятнее
	pAF := m[models.SinusRhythm][models.AtrialFibrillation]
	pAT := m[models.SinusRhythm][models.AtrialTachycardia]
	assert.Greater(t, pAT, pAF)

	nAF := episodeCount(p.TotalSeconds, 0.2, p.AFMeanBeats, AFMeanRR)
	nAT := episodeCount(p.TotalSeconds, 0.2, p.ATMeanBeats, p.ATMeanRR)
	assert.InDelta(t, nAT/nAF, pAT/pAF, 1e-9)
}

func TestBuildTransitionMatrix_InvalidParams(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*MatrixParams)
	}{
		{"negative burden", func(p *MatrixParams) { p.AFBurden = -0.1 }},
		{"burden above one", func(p *MatrixParams) { p.VPBBurden = 1.5 }},
		{"zero duration", func(p *MatrixParams) { p.TotalSeconds = 0 }},
		{"zero sinus rr", func(p *MatrixParams) { p.SinusMeanRR = 0 }},
		{"episode below one beat", func(p *MatrixParams) { p.ATMeanBeats = 0.5 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := baseMatrixParams()
			tc.mutate(&p)
			_, _, err := BuildTransitionMatrix(p)
			assert.ErrorIs(t, err, ErrInvalidParameter)
		})
	}
}
