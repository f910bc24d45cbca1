package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Juanpabl/simECG-2022/internal/config"
	"github.com/Juanpabl/simECG-2022/internal/repository"
	"github.com/Juanpabl/simECG-2022/internal/rhythm"
	"github.com/Juanpabl/simECG-2022/internal/service"
)

// HTTPHandler - HTTP слой над сервисом симуляций
type HTTPHandler struct {
	simService *service.SimulationService
	defaults   config.SimulationConfig
	log        *zap.Logger
}

// NewHTTPHandler создает новый HTTP обработчик
func NewHTTPHandler(simService *service.SimulationService, defaults config.SimulationConfig, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{
		simService: simService,
		defaults:   defaults,
		log:        log,
	}
}

// Register навешивает маршруты на роутер
func (h *HTTPHandler) Register(r *mux.Router) {
	r.HandleFunc("/api/v1/simulations", h.RunSimulation).Methods(http.MethodPost)
	r.HandleFunc("/api/v1/simulations", h.ListRuns).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/simulations/{id}", h.GetRun).Methods(http.MethodGet)
	r.HandleFunc("/api/v1/simulations/{id}/annotations", h.GetAnnotations).Methods(http.MethodGet)
	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
}

// RunSimulation запускает прогон. Тело запроса - JSON с параметрами
// симуляции; отсутствующие поля берутся из конфигурации сервера.
func (h *HTTPHandler) RunSimulation(w http.ResponseWriter, r *http.Request) {
	simCfg := h.defaults
	if err := json.NewDecoder(r.Body).Decode(&simCfg); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	cfg := config.Config{Simulation: simCfg}
	if err := cfg.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.simService.RunSimulation(r.Context(), simCfg)
	if err != nil {
		if errors.Is(err, rhythm.ErrInvalidParameter) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("simulation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "simulation failed")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// GetRun возвращает прогон по ID
func (h *HTTPHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	run, err := h.simService.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found: "+runID)
			return
		}
		h.log.Error("failed to get run", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, run)
}

// GetAnnotations возвращает только список аннотаций прогона
func (h *HTTPHandler) GetAnnotations(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	run, err := h.simService.GetRun(r.Context(), runID)
	if err != nil {
		if errors.Is(err, repository.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "run not found: "+runID)
			return
		}
		h.log.Error("failed to get run", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get run")
		return
	}

	writeJSON(w, http.StatusOK, run.Result.Annotations)
}

// ListRuns возвращает метаданные последних прогонов
func (h *HTTPHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit: "+v)
			return
		}
		limit = parsed
	}

	runs, err := h.simService.ListRuns(r.Context(), limit)
	if err != nil {
		h.log.Error("failed to list runs", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	writeJSON(w, http.StatusOK, runs)
}

// Health - проверка живости сервиса
func (h *HTTPHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
