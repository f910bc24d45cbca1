package models

import (
	"encoding/json"
	"errors"
)

// Ошибки валидации
var (
	ErrInvalidRR        = errors.New("invalid RR interval")
	ErrInvalidState     = errors.New("invalid rhythm state")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrLengthMismatch   = errors.New("sequence length mismatch")
)

// RhythmState - состояние марковской цепи ритма. Ровно одно состояние
// активно в каждый момент симуляции.
type RhythmState int

const (
	SinusRhythm RhythmState = iota
	AtrialFibrillation
	AtrialTachycardia
	BigeminyTrigeminy
	VpbInSinus
	VpbInTachycardia
	VpbInFibrillation

	// NumRhythmStates - размерность матрицы переходов.
	NumRhythmStates = 7
)

var stateNames = [NumRhythmStates]string{
	"sinus_rhythm",
	"atrial_fibrillation",
	"atrial_tachycardia",
	"bigeminy_trigeminy",
	"vpb_in_sinus",
	"vpb_in_tachycardia",
	"vpb_in_fibrillation",
}

func (s RhythmState) String() string {
	if !s.Valid() {
		return "unknown"
	}
	return stateNames[s]
}

// Valid проверяет что код состояния входит в поддерживаемый диапазон
func (s RhythmState) Valid() bool {
	return s >= SinusRhythm && s < NumRhythmStates
}

// BeatLabel - тип синтезированного удара
type BeatLabel int

const (
	BeatNormal BeatLabel = iota
	BeatAtrialEctopic
	BeatVentricularEctopic
)

// Code возвращает односимвольный код удара в конвенции MIT-BIH
func (l BeatLabel) Code() string {
	switch l {
	case BeatAtrialEctopic:
		return "A"
	case BeatVentricularEctopic:
		return "V"
	default:
		return "N"
	}
}

func (l BeatLabel) String() string {
	switch l {
	case BeatAtrialEctopic:
		return "atrial_ectopic"
	case BeatVentricularEctopic:
		return "ventricular_ectopic"
	default:
		return "normal"
	}
}

// RhythmCode - код ритм-аннотации в конвенции MIT-BIH
type RhythmCode string

const (
	RhythmSinus     RhythmCode = "(N"
	RhythmAFib      RhythmCode = "(AFIB"
	RhythmSVTA      RhythmCode = "(SVTA"
	RhythmBigeminy  RhythmCode = "(B"
	RhythmTrigeminy RhythmCode = "(T"
)

// BeatRecord представляет один синтезированный удар
type BeatRecord struct {
	RR      float64     `json:"rr"`       // интервал RR в секундах
	Label   BeatLabel   `json:"label"`    // тип удара
	State   RhythmState `json:"state"`    // активный ритм
	OnsetMS int64       `json:"onset_ms"` // накопленное время начала удара
}

// ToJSON преобразует BeatRecord в JSON строку
func (b BeatRecord) ToJSON() string {
	data, _ := json.Marshal(b)
	return string(data)
}

// Validate проверяет корректность удара
func (b BeatRecord) Validate() error {
	if b.RR <= 0 || b.RR > 5.0 {
		return ErrInvalidRR
	}
	if !b.State.Valid() {
		return ErrInvalidState
	}
	if b.OnsetMS < 0 {
		return ErrInvalidTimestamp
	}
	return nil
}

// AnnotationEvent - событие аннотации. RhythmCode заполняется только
// при смене ритма и всегда предшествует первому удару нового ритма.
type AnnotationEvent struct {
	TimestampMS int64      `json:"timestamp_ms"`
	BeatCode    string     `json:"beat_code,omitempty"`
	RhythmCode  RhythmCode `json:"rhythm_code,omitempty"`
}

// RunStats - итоговые счётчики одного прогона
type RunStats struct {
	TotalBeats     int                `json:"total_beats"`
	BeatsPerState  map[string]int     `json:"beats_per_state"`
	RealizedBurden map[string]float64 `json:"realized_burden"`
	DurationMS     int64              `json:"duration_ms"`
}

// SimulationResult - результат одного прогона движка ритма.
// Все три последовательности имеют одинаковую длину.
type SimulationResult struct {
	RunID        string            `json:"run_id"`
	RR           []float64         `json:"rr"`
	Labels       []BeatLabel       `json:"labels"`
	StateHistory []RhythmState     `json:"state_history"`
	Annotations  []AnnotationEvent `json:"annotations"`
	Stats        RunStats          `json:"stats"`
}

// Validate проверяет согласованность выходных последовательностей
func (r *SimulationResult) Validate() error {
	if len(r.RR) != len(r.Labels) || len(r.RR) != len(r.StateHistory) {
		return ErrLengthMismatch
	}
	return nil
}

// Beats собирает последовательности в записи ударов
func (r *SimulationResult) Beats() []BeatRecord {
	beats := make([]BeatRecord, 0, len(r.RR))
	var t int64
	for i := range r.RR {
		beats = append(beats, BeatRecord{
			RR:      r.RR[i],
			Label:   r.Labels[i],
			State:   r.StateHistory[i],
			OnsetMS: t,
		})
		t += int64(r.RR[i]*1000 + 0.5)
	}
	return beats
}
