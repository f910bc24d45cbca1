package senders

import (
	"errors"

	"github.com/Juanpabl/simECG-2022/internal/models"
)

// Ошибки отправителей
var (
	ErrSendFailed  = errors.New("failed to send data")
	ErrClosed      = errors.New("sender is closed")
	ErrInvalidData = errors.New("invalid data format")
)

// BeatSender интерфейс для выгрузки ударов
type BeatSender interface {
	// SendBeat отправляет одну запись удара
	SendBeat(beat models.BeatRecord) error

	// SendAnnotation отправляет одно событие аннотации
	SendAnnotation(ann models.AnnotationEvent) error

	// Close освобождает ресурсы
	Close() error
}

// ResultSender интерфейс для выгрузки результата целиком
type ResultSender interface {
	BeatSender

	// SendResult отправляет прогон: все удары и аннотации
	SendResult(result *models.SimulationResult) error
}

// SenderStats содержит статистику выгрузки
type SenderStats struct {
	BeatsWritten       int64
	AnnotationsWritten int64
	BytesWritten       int64
	ErrorsCount        int64
}
