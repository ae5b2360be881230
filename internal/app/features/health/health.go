// internal/app/features/health/health.go
package health

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

const checkTimeout = 5 * time.Second

// Check tests one dependency.
type Check func(ctx context.Context) error

// Handler provides health check endpoints.
type Handler struct {
	mongoClient *mongo.Client
	optional    map[string]Check
	logger      *zap.Logger
}

// NewHandler creates a new health check Handler. MongoDB is always
// checked; optional checks (redis) degrade /health but not /ready.
func NewHandler(mongoClient *mongo.Client, logger *zap.Logger) *Handler {
	return &Handler{
		mongoClient: mongoClient,
		optional:    map[string]Check{},
		logger:      logger,
	}
}

// AddCheck registers an optional dependency check.
func (h *Handler) AddCheck(name string, c Check) {
	h.optional[name] = c
}

// Response represents the health check response.
type Response struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services,omitempty"`
}

// Routes returns a chi.Router with health check routes mounted.
// Provides /health (full check), /health/ready, and /health/live.
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.Check)
	r.Get("/ready", h.Ready)
	r.Get("/live", h.Live)
	return r
}

// MountRootEndpoints adds /ready and /live directly on the root router
// for Kubernetes liveness and readiness checks.
func MountRootEndpoints(r chi.Router, h *Handler) {
	r.Get("/ready", h.Ready)
	r.Get("/readyz", h.Ready)
	r.Get("/live", h.Live)
	r.Get("/livez", h.Live)
}

func (h *Handler) pingMongo(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	return h.mongoClient.Ping(ctx, readpref.Primary())
}

// Check reports every dependency. MongoDB down is 503; an optional
// dependency down only marks the response degraded.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	resp := Response{Status: "ok", Services: map[string]string{}}
	code := http.StatusOK

	if err := h.pingMongo(r.Context()); err != nil {
		h.logger.Warn("health check: mongodb ping failed", zap.Error(err))
		resp.Status = "unavailable"
		resp.Services["mongodb"] = "unavailable"
		code = http.StatusServiceUnavailable
	} else {
		resp.Services["mongodb"] = "ok"
	}

	names := make([]string, 0, len(h.optional))
	for name := range h.optional {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := h.optional[name](ctx)
		cancel()
		if err != nil {
			h.logger.Warn("health check failed", zap.String("service", name), zap.Error(err))
			resp.Services[name] = "unavailable"
			if resp.Status == "ok" {
				resp.Status = "degraded"
			}
			continue
		}
		resp.Services[name] = "ok"
	}

	jsonutil.JSON(w, code, resp)
}

// Ready reports whether the service can take traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.pingMongo(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		jsonutil.JSON(w, http.StatusServiceUnavailable, Response{Status: "not ready"})
		return
	}
	jsonutil.OK(w, Response{Status: "ready"})
}

// Live reports that the process is up.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	jsonutil.OK(w, Response{Status: "alive"})
}
