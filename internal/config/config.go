package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/Juanpabl/simECG-2022/internal/rhythm"
)

// Config содержит все настройки приложения
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Output     OutputConfig     `yaml:"output"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// SimulationConfig - параметры движка ритма
type SimulationConfig struct {
	AFBurden  float64 `yaml:"af_burden" json:"af_burden"`
	ATBurden  float64 `yaml:"at_burden" json:"at_burden"`
	BTBurden  float64 `yaml:"bt_burden" json:"bt_burden"`
	VPBBurden float64 `yaml:"vpb_burden" json:"vpb_burden"`

	AFMeanEpisodeBeats float64 `yaml:"af_mean_episode_beats" json:"af_mean_episode_beats"`
	ATMeanEpisodeBeats float64 `yaml:"at_mean_episode_beats" json:"at_mean_episode_beats"`
	BTMeanEpisodeBeats float64 `yaml:"bt_mean_episode_beats" json:"bt_mean_episode_beats"`

	MeanHeartRate float64 `yaml:"mean_heart_rate" json:"mean_heart_rate"`
	ATMeanRR      float64 `yaml:"at_mean_rr" json:"at_mean_rr"`

	VPBInAT bool `yaml:"vpb_in_at" json:"vpb_in_at"`
	VPBInAF bool `yaml:"vpb_in_af" json:"vpb_in_af"`

	AtrialSubtypeProbs []float64 `yaml:"atrial_subtype_probs" json:"atrial_subtype_probs"`
	VentSubtypeProbs   []float64 `yaml:"vent_subtype_probs" json:"vent_subtype_probs"`

	SignalLengthSec float64 `yaml:"signal_length_sec" json:"signal_length_sec"`
	Seed            int64   `yaml:"seed" json:"seed"`

	// Пути к реальным записям RR для подмены синтетических пулов;
	// пустые - синтетические источники
	SinusRecordingPath string `yaml:"sinus_recording_path" json:"sinus_recording_path"`
	AFRecordingPath    string `yaml:"af_recording_path" json:"af_recording_path"`
}

// OutputConfig - настройки выгрузки результата
type OutputConfig struct {
	BeatsPath       string `yaml:"beats_path" json:"beats_path"`
	AnnotationsPath string `yaml:"annotations_path" json:"annotations_path"`
	AutoFlush       bool   `yaml:"auto_flush" json:"auto_flush"`
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	HTTPPort string `yaml:"http_port"`
}

// StorageConfig - настройки хранилищ. Пустой DSN/адрес включает
// in-memory заглушку.
type StorageConfig struct {
	PostgresDSN     string `yaml:"postgres_dsn"`
	RedisAddr       string `yaml:"redis_addr"`
	RedisPassword   string `yaml:"redis_password"`
	RedisDB         int    `yaml:"redis_db"`
	CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
}

// LogConfig - настройки логирования
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default возвращает конфигурацию по умолчанию: чистый синусовый
// ритм 60 уд/мин на 5 минут
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			AFMeanEpisodeBeats: 50,
			ATMeanEpisodeBeats: 8,
			BTMeanEpisodeBeats: 10,
			MeanHeartRate:      60,
			SignalLengthSec:    300,
		},
		Output: OutputConfig{
			BeatsPath:       "data/beats.jsonl",
			AnnotationsPath: "data/annotations.jsonl",
			AutoFlush:       true,
		},
		Server: ServerConfig{
			HTTPPort: getEnvString("HTTP_PORT", "8080"),
		},
		Storage: StorageConfig{
			PostgresDSN:     getEnvString("POSTGRES_DSN", ""),
			RedisAddr:       getEnvString("REDIS_ADDR", ""),
			RedisPassword:   getEnvString("REDIS_PASSWORD", ""),
			RedisDB:         getEnvInt("REDIS_DB", 0),
			CacheTTLSeconds: getEnvInt("CACHE_TTL_SECONDS", 86400),
		},
		Log: LogConfig{
			Level: getEnvString("LOG_LEVEL", "info"),
		},
	}
}

// Load загружает конфигурацию: дефолты, затем YAML файл (если путь не
// пуст), затем переменные окружения поверх
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate проверяет диапазоны до передачи параметров движку. Сумма
// нагрузок выше 1 допустима - движок нормирует её пропорционально.
func (c *Config) Validate() error {
	s := c.Simulation
	for _, b := range []struct {
		name string
		v    float64
	}{
		{"af_burden", s.AFBurden},
		{"at_burden", s.ATBurden},
		{"bt_burden", s.BTBurden},
		{"vpb_burden", s.VPBBurden},
	} {
		if b.v < 0 || b.v > 1 {
			return fmt.Errorf("%w: %s=%.3f outside [0, 1]", rhythm.ErrInvalidParameter, b.name, b.v)
		}
	}
	if s.MeanHeartRate < 40 || s.MeanHeartRate > 200 {
		return fmt.Errorf("%w: mean_heart_rate=%.1f outside [40, 200]", rhythm.ErrInvalidParameter, s.MeanHeartRate)
	}
	if s.SignalLengthSec <= 0 {
		return fmt.Errorf("%w: signal_length_sec=%.1f", rhythm.ErrInvalidParameter, s.SignalLengthSec)
	}
	if n := len(s.AtrialSubtypeProbs); n != 0 && n != 4 {
		return fmt.Errorf("%w: atrial_subtype_probs must have 4 entries, got %d", rhythm.ErrInvalidParameter, n)
	}
	if n := len(s.VentSubtypeProbs); n != 0 && n != 3 {
		return fmt.Errorf("%w: vent_subtype_probs must have 3 entries, got %d", rhythm.ErrInvalidParameter, n)
	}
	return nil
}

// Params переводит настройки в параметры движка
func (s SimulationConfig) Params() rhythm.Params {
	return rhythm.Params{
		AFBurden:           s.AFBurden,
		ATBurden:           s.ATBurden,
		BTBurden:           s.BTBurden,
		VPBBurden:          s.VPBBurden,
		AFMeanEpisodeBeats: s.AFMeanEpisodeBeats,
		ATMeanEpisodeBeats: s.ATMeanEpisodeBeats,
		BTMeanEpisodeBeats: s.BTMeanEpisodeBeats,
		MeanHeartRate:      s.MeanHeartRate,
		ATMeanRR:           s.ATMeanRR,
		VPBInAT:            s.VPBInAT,
		VPBInAF:            s.VPBInAF,
		AtrialSubtypeProbs: s.AtrialSubtypeProbs,
		VentSubtypeProbs:   s.VentSubtypeProbs,
		SignalLengthSec:    s.SignalLengthSec,
		Seed:               s.Seed,
	}
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
