package sources

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// RecordingGenerator подставляет реальную запись интервалов RR вместо
// синтетического источника. Дозаполнение зацикливает запись, так что
// контракт пула (pull next + расширение по требованию) сохраняется.
type RecordingGenerator struct {
	intervals []float64
	pos       int
}

// NewRecordingGenerator создает источник из готовой последовательности
func NewRecordingGenerator(intervals []float64) (*RecordingGenerator, error) {
	if len(intervals) == 0 {
		return nil, ErrEmptyRecording
	}
	for i, v := range intervals {
		if v <= 0 {
			return nil, fmt.Errorf("%w: non-positive interval %.3f at index %d", ErrInvalidConfig, v, i)
		}
	}
	return &RecordingGenerator{
		intervals: append([]float64(nil), intervals...),
	}, nil
}

// LoadRecording читает запись из текстового файла: один интервал RR
// в секундах на строку, пустые строки и строки с # пропускаются
func LoadRecording(path string) (*RecordingGenerator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	var intervals []float64
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, fmt.Errorf("failed to parse recording line %d: %w", line, err)
		}
		intervals = append(intervals, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read recording: %w", err)
	}

	return NewRecordingGenerator(intervals)
}

// Generate возвращает очередные n интервалов, зацикливая запись
func (g *RecordingGenerator) Generate(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = g.intervals[g.pos]
		g.pos = (g.pos + 1) % len(g.intervals)
	}
	return out
}

// Len возвращает длину исходной записи
func (g *RecordingGenerator) Len() int {
	return len(g.intervals)
}
