package senders

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/Juanpabl/simECG-2022/internal/models"
)

// JSONLWriter пишет удары и аннотации в два JSONL файла
type JSONLWriter struct {
	mu        sync.Mutex
	beats     *bufio.Writer
	anns      *bufio.Writer
	beatsFile *os.File
	annsFile  *os.File
	autoFlush bool
	stats     SenderStats
}

// JSONLConfig конфигурация JSONL писателя
type JSONLConfig struct {
	BeatsPath       string
	AnnotationsPath string
	AutoFlush       bool
	CreateDir       bool
}

// NewJSONLWriter создает писатель; директории создаются при
// CreateDir
func NewJSONLWriter(cfg JSONLConfig) (*JSONLWriter, error) {
	if cfg.CreateDir {
		for _, p := range []string{cfg.BeatsPath, cfg.AnnotationsPath} {
			if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
				return nil, fmt.Errorf("failed to create directory: %w", err)
			}
		}
	}

	beatsFile, err := os.OpenFile(cfg.BeatsPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open beats file: %w", err)
	}
	annsFile, err := os.OpenFile(cfg.AnnotationsPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		beatsFile.Close()
		return nil, fmt.Errorf("failed to open annotations file: %w", err)
	}

	return &JSONLWriter{
		beats:     bufio.NewWriter(beatsFile),
		anns:      bufio.NewWriter(annsFile),
		beatsFile: beatsFile,
		annsFile:  annsFile,
		autoFlush: cfg.AutoFlush,
	}, nil
}

// SendBeat записывает одну запись удара
func (j *JSONLWriter) SendBeat(beat models.BeatRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.beats == nil {
		return ErrClosed
	}
	if err := beat.Validate(); err != nil {
		j.stats.ErrorsCount++
		return fmt.Errorf("beat validation failed: %w", err)
	}

	n, err := writeLine(j.beats, beat)
	if err != nil {
		j.stats.ErrorsCount++
		return err
	}
	j.stats.BeatsWritten++
	j.stats.BytesWritten += int64(n)

	if j.autoFlush {
		return j.beats.Flush()
	}
	return nil
}

// SendAnnotation записывает одно событие аннотации
func (j *JSONLWriter) SendAnnotation(ann models.AnnotationEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.anns == nil {
		return ErrClosed
	}

	n, err := writeLine(j.anns, ann)
	if err != nil {
		j.stats.ErrorsCount++
		return err
	}
	j.stats.AnnotationsWritten++
	j.stats.BytesWritten += int64(n)

	if j.autoFlush {
		return j.anns.Flush()
	}
	return nil
}

// SendResult выгружает прогон целиком
func (j *JSONLWriter) SendResult(result *models.SimulationResult) error {
	if err := result.Validate(); err != nil {
		return fmt.Errorf("result validation failed: %w", err)
	}
	for _, beat := range result.Beats() {
		if err := j.SendBeat(beat); err != nil {
			return err
		}
	}
	for _, ann := range result.Annotations {
		if err := j.SendAnnotation(ann); err != nil {
			return err
		}
	}
	return j.Flush()
}

func writeLine(w *bufio.Writer, v any) (int, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return 0, fmt.Errorf("JSON marshaling failed: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return 0, fmt.Errorf("write failed: %w", err)
	}
	if err := w.WriteByte('\n'); err != nil {
		return 0, fmt.Errorf("newline write failed: %w", err)
	}
	return len(data) + 1, nil
}

// Flush принудительно сбрасывает буферы в файлы
func (j *JSONLWriter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.beats == nil {
		return ErrClosed
	}
	if err := j.beats.Flush(); err != nil {
		return err
	}
	return j.anns.Flush()
}

// Close закрывает файлы и освобождает ресурсы
func (j *JSONLWriter) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.beats != nil {
		if err := j.beats.Flush(); err != nil {
			return fmt.Errorf("final flush failed: %w", err)
		}
		if err := j.anns.Flush(); err != nil {
			return fmt.Errorf("final flush failed: %w", err)
		}
	}
	if j.beatsFile != nil {
		if err := j.beatsFile.Close(); err != nil {
			return fmt.Errorf("file close failed: %w", err)
		}
	}
	if j.annsFile != nil {
		if err := j.annsFile.Close(); err != nil {
			return fmt.Errorf("file close failed: %w", err)
		}
	}

	j.beats = nil
	j.anns = nil
	j.beatsFile = nil
	j.annsFile = nil
	return nil
}

// GetStats возвращает статистику записи
func (j *JSONLWriter) GetStats() SenderStats {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stats
}
