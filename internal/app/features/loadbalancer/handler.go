// Package loadbalancer lets brand managers set how new cases are split
// between processors.
package loadbalancer

import (
	"net/http"
	"strconv"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	"github.com/dalemusser/visadesk/internal/app/store/audit"
	lbstore "github.com/dalemusser/visadesk/internal/app/store/loadbalancer"
	userstore "github.com/dalemusser/visadesk/internal/app/store/users"
	"github.com/dalemusser/visadesk/internal/app/system/auditlog"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/app/system/weights"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Handler struct {
	weights *lbstore.Store
	users   *userstore.Store
	errLog  *errorsfeature.ErrorLogger
	audit   *auditlog.Logger
	logger  *zap.Logger
}

func NewHandler(db *mongo.Database, errLog *errorsfeature.ErrorLogger, auditLogger *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		weights: lbstore.New(db),
		users:   userstore.New(db),
		errLog:  errLog,
		audit:   auditLogger,
		logger:  logger,
	}
}

// Routes is mounted at /admin/load-balancer.
func Routes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireManager)
	r.Get("/", h.get)
	r.Put("/", h.put)
	return r
}

type row struct {
	ProcessorID   primitive.ObjectID `json:"processor_id"`
	ProcessorName string             `json:"processor_name"`
	Weight        int                `json:"weight"`
	Assigned      int64              `json:"assigned"`
}

type response struct {
	Processors []row `json:"processors"`
	Total      int   `json:"total"`
	Enabled    bool  `json:"enabled"`
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "load balancer get")
	defer cancel()

	list, err := h.weights.List(ctx, brand.ID)
	if err != nil {
		h.errLog.Internal(w, r, "failed to load processor weights", err)
		return
	}
	ids := make([]primitive.ObjectID, 0, len(list))
	for _, pw := range list {
		ids = append(ids, pw.ProcessorID)
	}
	names, err := h.users.Names(ctx, ids)
	if err != nil {
		h.errLog.Internal(w, r, "failed to load processor names", err)
		return
	}

	out := response{Processors: make([]row, 0, len(list))}
	for _, pw := range list {
		out.Processors = append(out.Processors, row{
			ProcessorID:   pw.ProcessorID,
			ProcessorName: names[pw.ProcessorID],
			Weight:        pw.Weight,
			Assigned:      pw.Assigned,
		})
	}
	out.Total = weights.Sum(list)
	out.Enabled = out.Total == weights.Total
	jsonutil.OK(w, out)
}

func (h *Handler) put(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	var in []weights.Entry
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if err := weights.Validate(in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "load balancer put")
	defer cancel()

	ids := make([]primitive.ObjectID, 0, len(in))
	for _, e := range in {
		ids = append(ids, e.ProcessorID)
	}
	active, err := h.users.ActiveProcessors(ctx, brand.ID, ids)
	if err != nil {
		h.errLog.Internal(w, r, "failed to check processors", err)
		return
	}
	for _, id := range ids {
		if _, ok := active[id]; !ok {
			jsonutil.BadRequest(w, "unknown or inactive processor "+id.Hex())
			return
		}
	}

	if err := h.weights.Replace(ctx, brand.ID, in); err != nil {
		h.errLog.Internal(w, r, "failed to save processor weights", err)
		return
	}

	var actor *primitive.ObjectID
	if su, ok := auth.CurrentUser(r); ok {
		id := su.UserID()
		actor = &id
	}
	h.audit.Admin(r, &brand.ID, actor, nil, audit.EventWeightsUpdated, map[string]string{"processors": strconv.Itoa(len(in))})
	h.get(w, r)
}
