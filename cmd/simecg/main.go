package main

import (
	"flag"
	"log"

	"github.com/google/uuid"

	"github.com/Juanpabl/simECG-2022/internal/config"
	"github.com/Juanpabl/simECG-2022/internal/rhythm"
	"github.com/Juanpabl/simECG-2022/internal/senders"
	"github.com/Juanpabl/simECG-2022/internal/sources"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигурации")
	duration := flag.Float64("duration", 0, "длина сигнала в секундах (поверх конфигурации)")
	seed := flag.Int64("seed", 0, "зерно генератора случайных чисел (поверх конфигурации)")
	beatsPath := flag.String("beats", "", "путь к файлу ударов (поверх конфигурации)")
	annotationsPath := flag.String("annotations", "", "путь к файлу аннотаций (поверх конфигурации)")
	flag.Parse()

	// Загрузка конфигурации
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}
	if *duration > 0 {
		cfg.Simulation.SignalLengthSec = *duration
	}
	if *seed != 0 {
		cfg.Simulation.Seed = *seed
	}
	if *beatsPath != "" {
		cfg.Output.BeatsPath = *beatsPath
	}
	if *annotationsPath != "" {
		cfg.Output.AnnotationsPath = *annotationsPath
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Ошибка в параметрах симуляции: %v", err)
	}

	params := cfg.Simulation.Params()

	// Подмена синтетических источников реальными записями, если заданы
	var sinusPool, afPool *sources.Pool
	if p := cfg.Simulation.SinusRecordingPath; p != "" {
		gen, err := sources.LoadRecording(p)
		if err != nil {
			log.Fatalf("Ошибка загрузки записи синусового ритма: %v", err)
		}
		sinusPool = sources.NewPool(gen, poolSize(cfg.Simulation))
	}
	if p := cfg.Simulation.AFRecordingPath; p != "" {
		gen, err := sources.LoadRecording(p)
		if err != nil {
			log.Fatalf("Ошибка загрузки записи фибрилляции: %v", err)
		}
		afPool = sources.NewPool(gen, poolSize(cfg.Simulation))
	}

	// Создание и запуск движка ритма
	engine, err := rhythm.NewEngine(params, sinusPool, afPool, nil)
	if err != nil {
		log.Fatalf("Ошибка инициализации движка: %v", err)
	}
	result, err := engine.Run()
	if err != nil {
		log.Fatalf("Ошибка симуляции: %v", err)
	}
	result.RunID = uuid.New().String()

	// Выгрузка результата
	writer, err := senders.NewJSONLWriter(senders.JSONLConfig{
		BeatsPath:       cfg.Output.BeatsPath,
		AnnotationsPath: cfg.Output.AnnotationsPath,
		AutoFlush:       cfg.Output.AutoFlush,
		CreateDir:       true,
	})
	if err != nil {
		log.Fatalf("Ошибка инициализации отправителя: %v", err)
	}
	defer writer.Close()

	if err := writer.SendResult(result); err != nil {
		log.Fatalf("Ошибка записи результата: %v", err)
	}

	log.Printf("run %s: %d beats, %d annotations, %.1f s simulated",
		result.RunID, result.Stats.TotalBeats, len(result.Annotations),
		float64(result.Stats.DurationMS)/1000.0)
	for state, n := range result.Stats.BeatsPerState {
		log.Printf("  %-22s %6d beats, burden %.3f",
			state, n, result.Stats.RealizedBurden[state])
	}
}

func poolSize(s config.SimulationConfig) int {
	n := int(s.SignalLengthSec*s.MeanHeartRate/60) + 64
	if n < 64 {
		n = 64
	}
	return n
}
