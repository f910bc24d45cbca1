package sources

import "errors"

// Ошибки источников интервалов
var (
	ErrEmptyRecording = errors.New("recording contains no intervals")
	ErrInvalidConfig  = errors.New("invalid source configuration")
)

// Generator наполняет пул очередной порцией интервалов RR (секунды).
// Реализации детерминированы при фиксированном seed.
type Generator interface {
	Generate(n int) []float64
}

// Pool - последовательность интервалов RR, потребляемая строго по
// порядку одним владельцем. Будущие слоты могут быть переписаны
// (компенсаторные паузы), но только до их потребления. Дозаполнение
// при исчерпании сохраняет прежние индексы.
type Pool struct {
	data  []float64
	idx   int
	gen   Generator
	chunk int
}

// NewPool создает пул и сразу наполняет его initial интервалами
func NewPool(gen Generator, initial int) *Pool {
	if initial < 1 {
		initial = 1
	}
	p := &Pool{
		gen:   gen,
		chunk: initial,
	}
	p.data = append(p.data, gen.Generate(initial)...)
	return p
}

// ensure дозаполняет пул так, чтобы был доступен текущий слот
func (p *Pool) ensure() {
	for p.idx >= len(p.data) {
		p.data = append(p.data, p.gen.Generate(p.chunk)...)
	}
}

// Next потребляет и возвращает очередной интервал
func (p *Pool) Next() float64 {
	p.ensure()
	v := p.data[p.idx]
	p.idx++
	return v
}

// Current возвращает следующий к потреблению интервал, не продвигая пул
func (p *Pool) Current() float64 {
	p.ensure()
	return p.data[p.idx]
}

// SetCurrent переписывает следующий к потреблению слот
func (p *Pool) SetCurrent(v float64) {
	p.ensure()
	p.data[p.idx] = v
}

// Skip пропускает n интервалов
func (p *Pool) Skip(n int) {
	for i := 0; i < n; i++ {
		p.ensure()
		p.idx++
	}
}

// Index возвращает число потреблённых интервалов
func (p *Pool) Index() int {
	return p.idx
}

// Len возвращает текущий размер пула
func (p *Pool) Len() int {
	return len(p.data)
}
