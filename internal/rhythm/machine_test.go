package rhythm

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Juanpabl/simECG-2022/internal/models"
)

func runEngine(t *testing.T, p Params) *models.SimulationResult {
	t.Helper()
	engine, err := NewEngine(p, nil, nil, nil)
	require.NoError(t, err)
	result, err := engine.Run()
	require.NoError(t, err)
	return result
}

func TestEngine_SinusOnly(t *testing.T) {
	result := runEngine(t, Params{
		MeanHeartRate:   60,
		SignalLengthSec: 600,
		Seed:            1,
	})

	require.NotEmpty(t, result.RR)
	for i, label := range result.Labels {
		assert.Equal(t, models.BeatNormal, label, "beat %d", i)
		assert.Equal(t, models.SinusRhythm, result.StateHistory[i], "beat %d", i)
	}

	// Ровно одна ритм-аннотация за весь прогон
	rhythmAnns := 0
	for _, a := range result.Annotations {
		if a.RhythmCode != "" {
			rhythmAnns++
			assert.Equal(t, models.RhythmSinus, a.RhythmCode)
		}
	}
	assert.Equal(t, 1, rhythmAnns)
}

func TestEngine_FibrillationOnly(t *testing.T) {
	result := runEngine(t, Params{
		AFBurden:           1.0,
		AFMeanEpisodeBeats: 50,
		MeanHeartRate:      60,
		SignalLengthSec:    600,
		Seed:               2,
	})

	require.NotEmpty(t, result.RR)
	rhythmAnns := 0
	for i := range result.RR {
		assert.Equal(t, models.AtrialFibrillation, result.StateHistory[i], "beat %d", i)
		assert.Equal(t, models.BeatNormal, result.Labels[i], "beat %d", i)
		// Фильтр выбросов желудочкового ответа
		assert.LessOrEqual(t, result.RR[i], maxAFInterval, "beat %d", i)
	}
	for _, a := range result.Annotations {
		if a.RhythmCode != "" {
			rhythmAnns++
			assert.Equal(t, models.RhythmAFib, a.RhythmCode)
		}
	}
	assert.Equal(t, 1, rhythmAnns)
}

func TestEngine_VPBNeverConsecutive(t *testing.T) {
	result := runEngine(t, Params{
		VPBBurden:       0.3,
		MeanHeartRate:   70,
		SignalLengthSec: 900,
		Seed:            3,
	})

	// Изолированные ЖЭ в синусе: двух подряд быть не может
	for i := 1; i < len(result.Labels); i++ {
		if result.Labels[i] == models.BeatVentricularEctopic {
			assert.NotEqual(t, models.BeatVentricularEctopic, result.Labels[i-1],
				"consecutive ventricular ectopics at %d", i)
		}
	}
	// Экстрасистолия реально присутствует
	vpb := 0
	for _, l := range result.Labels {
		if l == models.BeatVentricularEctopic {
			vpb++
		}
	}
	assert.Greater(t, vpb, 0)
}

func TestEngine_SequenceLengthsEqual(t *testing.T) {
	result := runEngine(t, Params{
		AFBurden:           0.2,
		ATBurden:           0.1,
		BTBurden:           0.05,
		VPBBurden:          0.1,
		AFMeanEpisodeBeats: 40,
		ATMeanEpisodeBeats: 8,
		BTMeanEpisodeBeats: 10,
		MeanHeartRate:      65,
		VPBInAT:            true,
		VPBInAF:            true,
		SignalLengthSec:    1200,
		Seed:               4,
	})

	require.Equal(t, len(result.RR), len(result.Labels))
	require.Equal(t, len(result.RR), len(result.StateHistory))
	assert.Equal(t, len(result.RR), result.Stats.TotalBeats)
}

func TestEngine_RespectsTimeBudget(t *testing.T) {
	const lengthSec = 300.0
	result := runEngine(t, Params{
		AFBurden:           0.3,
		ATBurden:           0.1,
		AFMeanEpisodeBeats: 30,
		ATMeanEpisodeBeats: 6,
		MeanHeartRate:      75,
		SignalLengthSec:    lengthSec,
		Seed:               5,
	})

	budgetMS := int64(lengthSec * 1000)
	var t64 int64
	for _, rr := range result.RR {
		t64 += int64(math.Round(rr * 1000))
	}
	assert.LessOrEqual(t, t64, budgetMS)
	assert.Equal(t, t64, result.Stats.DurationMS)

	// Аннотаций позже последнего удара нет
	for _, a := range result.Annotations {
		assert.LessOrEqual(t, a.TimestampMS, t64)
	}
}

func TestEngine_RhythmAnnotationPrecedesBeat(t *testing.T) {
	result := runEngine(t, Params{
		AFBurden:           0.4,
		AFMeanEpisodeBeats: 25,
		MeanHeartRate:      60,
		SignalLengthSec:    900,
		Seed:               6,
	})

	// Смена ритма датируется серединой первого интервала эпизода и
	// потому всегда раньше аннотации самого удара
	var lastBeatTS int64 = -1
	for _, a := range result.Annotations {
		if a.RhythmCode != "" {
			assert.Greater(t, a.TimestampMS, lastBeatTS, "rhythm %s", a.RhythmCode)
		} else {
			lastBeatTS = a.TimestampMS
		}
	}
}

func TestEngine_RhythmAnnotationOnChangeOnly(t *testing.T) {
	result := runEngine(t, Params{
		AFBurden:           0.3,
		ATBurden:           0.15,
		AFMeanEpisodeBeats: 20,
		ATMeanEpisodeBeats: 6,
		MeanHeartRate:      70,
		SignalLengthSec:    1800,
		Seed:               7,
	})

	var last models.RhythmCode
	for _, a := range result.Annotations {
		if a.RhythmCode == "" {
			continue
		}
		assert.NotEqual(t, last, a.RhythmCode, "repeated rhythm annotation")
		last = a.RhythmCode
	}
}

func TestEngine_TachycardiaEpisodeShape(t *testing.T) {
	// Фиксированная длина эпизодов AT через подменный сэмплер
	engine, err := NewEngine(Params{
		ATBurden:           0.3,
		ATMeanEpisodeBeats: 6,
		MeanHeartRate:      60,
		SignalLengthSec:    900,
		Seed:               8,
	}, nil, nil, fixedSampler(6))
	require.NoError(t, err)

	result, err := engine.Run()
	require.NoError(t, err)

	// Первый удар эпизода помечен предсердной экстрасистолой,
	// последующие - нормальные; интервалы не короче 0.2 с
	for i := range result.RR {
		if result.StateHistory[i] != models.AtrialTachycardia {
			continue
		}
		assert.GreaterOrEqual(t, result.RR[i], minTachyInterval, "beat %d", i)
		if i == 0 || result.StateHistory[i-1] != models.AtrialTachycardia {
			assert.Equal(t, models.BeatAtrialEctopic, result.Labels[i], "episode start %d", i)
		} else {
			assert.Equal(t, models.BeatNormal, result.Labels[i], "beat %d", i)
		}
	}
}

func TestEngine_IsolatedAPBKeepsRhythm(t *testing.T) {
	// Эпизод длиной 1 - изолированная предсердная экстрасистола: удар
	// A без смены категории ритма
	engine, err := NewEngine(Params{
		ATBurden:           0.1,
		ATMeanEpisodeBeats: 1,
		MeanHeartRate:      60,
		SignalLengthSec:    600,
		Seed:               9,
	}, nil, nil, fixedSampler(1))
	require.NoError(t, err)

	result, err := engine.Run()
	require.NoError(t, err)

	apb := 0
	for i, l := range result.Labels {
		if l == models.BeatAtrialEctopic {
			apb++
			assert.Equal(t, models.AtrialTachycardia, result.StateHistory[i])
		}
	}
	assert.Greater(t, apb, 0)

	for _, a := range result.Annotations {
		if a.RhythmCode != "" {
			assert.Equal(t, models.RhythmSinus, a.RhythmCode)
		}
	}
}

func TestEngine_BigeminyPattern(t *testing.T) {
	result := runEngine(t, Params{
		BTBurden:           0.4,
		BTMeanEpisodeBeats: 8,
		MeanHeartRate:      60,
		SignalLengthSec:    1200,
		Seed:               10,
	})

	// Каждая группа би/тригеминии начинается с нормального удара;
	// пара ЖЭ подряд допустима только в тригеминии после нормального
	for i := range result.Labels {
		if result.StateHistory[i] != models.BigeminyTrigeminy {
			continue
		}
		if result.Labels[i] == models.BeatVentricularEctopic && i > 0 &&
			result.StateHistory[i-1] == models.BigeminyTrigeminy {
			if result.Labels[i-1] == models.BeatVentricularEctopic {
				// Тригеминия: перед парой ЖЭ стоит нормальный удар
				require.Greater(t, i, 1)
				assert.Equal(t, models.BeatNormal, result.Labels[i-2], "beat %d", i)
			}
		}
		if i == 0 || result.StateHistory[i-1] != result.StateHistory[i] {
			assert.Equal(t, models.BeatNormal, result.Labels[i], "episode start %d", i)
		}
	}
}

func TestEngine_StatsConsistent(t *testing.T) {
	result := runEngine(t, Params{
		AFBurden:           0.25,
		AFMeanEpisodeBeats: 30,
		MeanHeartRate:      60,
		SignalLengthSec:    1800,
		Seed:               11,
	})

	total := 0
	for _, n := range result.Stats.BeatsPerState {
		total += n
	}
	assert.Equal(t, result.Stats.TotalBeats, total)

	burdenSum := 0.0
	for _, b := range result.Stats.RealizedBurden {
		burdenSum += b
	}
	assert.InDelta(t, 1.0, burdenSum, 1e-9)
}

func TestEngine_RealizedBurdenNearTarget(t *testing.T) {
	result := runEngine(t, Params{
		AFBurden:           0.3,
		AFMeanEpisodeBeats: 50,
		MeanHeartRate:      60,
		SignalLengthSec:    7200,
		Seed:               12,
	})

	// На двухчасовом прогоне реализованная нагрузка ФП близка к целевой
	assert.InDelta(t, 0.3, result.Stats.RealizedBurden[models.AtrialFibrillation.String()], 0.12)
}

func TestEngine_DeterministicWithSeed(t *testing.T) {
	p := Params{
		AFBurden:           0.2,
		VPBBurden:          0.1,
		AFMeanEpisodeBeats: 20,
		MeanHeartRate:      65,
		SignalLengthSec:    600,
		Seed:               99,
	}
	a := runEngine(t, p)
	b := runEngine(t, p)

	require.Equal(t, a.RR, b.RR)
	require.Equal(t, a.Labels, b.Labels)
	require.Equal(t, a.Annotations, b.Annotations)
}

func TestEngine_InvalidParams(t *testing.T) {
	_, err := NewEngine(Params{MeanHeartRate: 30, SignalLengthSec: 60}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewEngine(Params{MeanHeartRate: 60, SignalLengthSec: -1}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidParameter)

	_, err = NewEngine(Params{MeanHeartRate: 60, SignalLengthSec: 60, AFBurden: 1.5}, nil, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestNormalizeBTLength(t *testing.T) {
	// Бигеминия: минимум 4, выравнивание по чётности пар
	assert.Equal(t, 4, normalizeBTLength(1, kindBigeminy))
	assert.Equal(t, 4, normalizeBTLength(4, kindBigeminy))
	assert.Equal(t, 6, normalizeBTLength(5, kindBigeminy))

	// Тригеминия: минимум 6, кратность тройкам
	assert.Equal(t, 6, normalizeBTLength(2, kindTrigeminy))
	assert.Equal(t, 9, normalizeBTLength(7, kindTrigeminy))
	assert.Equal(t, 12, normalizeBTLength(12, kindTrigeminy))
}

func TestSupportHi(t *testing.T) {
	assert.Equal(t, 30, supportHi(1))
	assert.Equal(t, 420, supportHi(50))
}
