package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/ja38055/TechFataFat/internal/apperr"
	"github.com/ja38055/TechFataFat/internal/config"
	"github.com/ja38055/TechFataFat/internal/db"
	"github.com/ja38055/TechFataFat/internal/logger"
	"github.com/ja38055/TechFataFat/internal/models"
	"github.com/ja38055/TechFataFat/internal/queue"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const (
	defaultLimit = 20
	maxLimit     = 100
	maxTopicLen  = 200
)

type Handler struct {
	store    db.RunStore
	queue    queue.Producer
	channels []config.Channel
	log      *zap.Logger
}

func NewHandler(store db.RunStore, q queue.Producer, channels []config.Channel, log *zap.Logger) *Handler {
	return &Handler{
		store:    store,
		queue:    q,
		channels: channels,
		log:      logger.Named(log, "api"),
	}
}

// CreateRun handles POST /v1/runs
// Body: {"channel": "...", "topic": "..."}. channel may be omitted when only
// one channel is configured; topic skips trend discovery.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRunRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	channel, ok := h.resolveChannel(req.Channel)
	if !ok {
		respondError(w, http.StatusBadRequest, "Unknown channel. Allowed: "+strings.Join(h.channelNames(), ", "))
		return
	}

	var topic *string
	if req.Topic != nil {
		t := strings.TrimSpace(*req.Topic)
		if len([]rune(t)) > maxTopicLen {
			respondError(w, http.StatusBadRequest, "Topic is too long")
			return
		}
		if t != "" {
			topic = &t
		}
	}

	run := &models.Run{
		ID:      uuid.New(),
		Channel: channel.Name,
		Topic:   topic,
		Stage:   models.StageQueued,
	}
	if err := h.store.CreateRun(r.Context(), run); err != nil {
		h.log.Error("failed to create run", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to create run")
		return
	}

	if err := h.queue.EnqueueRun(r.Context(), run.ID, run.Channel, topic); err != nil {
		h.log.Error("failed to enqueue run", zap.String("run_id", run.ID.String()), zap.Error(err))
		_ = h.store.FailRun(r.Context(), run.ID, models.RunFailure{
			Stage:   models.StageQueued,
			Code:    apperr.Kind(apperr.CodeUnknown),
			Message: "failed to enqueue run",
		})
		respondError(w, http.StatusServiceUnavailable, "Failed to enqueue run")
		return
	}

	h.log.Info("run queued", zap.String("run_id", run.ID.String()), zap.String("channel", run.Channel))
	respondJSON(w, http.StatusAccepted, models.CreateRunResponse{
		RunID: run.ID,
		Stage: run.Stage,
	})
}

// ListRuns handles GET /v1/runs
// Query params:
//   - channel: filter by channel name
//   - stage:   filter by stage (queued, ..., done, failed)
//   - limit:   max results per page (default 20, max 100)
//   - offset:  number of results to skip (default 0)
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	stage := models.Stage(q.Get("stage"))
	if stage != "" && !stage.Valid() {
		respondError(w, http.StatusBadRequest, "Invalid stage filter")
		return
	}

	limit := defaultLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = min(n, maxLimit)
	}

	offset := 0
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "Invalid offset")
			return
		}
		offset = n
	}

	runs, total, err := h.store.ListRuns(r.Context(), db.RunFilter{
		Channel: q.Get("channel"),
		Stage:   stage,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		h.log.Error("failed to list runs", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	respondJSON(w, http.StatusOK, models.ListRunsResponse{
		Runs:   runs,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// GetRun handles GET /v1/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid run ID")
		return
	}

	run, err := h.store.GetRun(r.Context(), id)
	if apperr.Is(err, apperr.CodeNotFound) {
		respondError(w, http.StatusNotFound, "Run not found")
		return
	}
	if err != nil {
		h.log.Error("failed to get run", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to get run")
		return
	}

	respondJSON(w, http.StatusOK, run)
}

// ListChannels handles GET /v1/channels
func (h *Handler) ListChannels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, lo.Map(h.channels, func(ch config.Channel, _ int) models.ChannelSummary {
		return models.ChannelSummary{
			Name:      ch.Name,
			Region:    ch.Region,
			Languages: ch.Languages(),
			Schedule:  ch.Schedule,
		}
	}))
}

func (h *Handler) resolveChannel(name string) (config.Channel, bool) {
	if name == "" && len(h.channels) == 1 {
		return h.channels[0], true
	}
	return lo.Find(h.channels, func(ch config.Channel) bool {
		return strings.EqualFold(ch.Name, name)
	})
}

func (h *Handler) channelNames() []string {
	return lo.Map(h.channels, func(ch config.Channel, _ int) string { return ch.Name })
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health check. Queues that can count their backlog add queue_depth; a
// queue that cannot be reached makes the API unhealthy.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	depth, ok := h.queue.(queue.Depth)
	if !ok {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	n, err := depth.GetQueueLength(r.Context(), queue.QueueRuns)
	if err != nil {
		h.log.Error("failed to read queue depth", zap.Error(err))
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok", "queue_depth": n})
}
