// Package notifications serves a signed-in user's in-app notifications.
// The same routes are mounted for clients and staff.
package notifications

import (
	"errors"
	"net/http"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	notificationstore "github.com/dalemusser/visadesk/internal/app/store/notifications"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/paging"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Handler struct {
	store  *notificationstore.Store
	errLog *errorsfeature.ErrorLogger
	logger *zap.Logger
}

func NewHandler(db *mongo.Database, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		store:  notificationstore.New(db),
		errLog: errLog,
		logger: logger,
	}
}

// Routes is mounted at /user/notifications and /admin/notifications.
func Routes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireSignedIn)
	r.Get("/", h.list)
	r.Get("/count", h.count)
	r.Post("/read-all", h.readAll)
	r.Post("/{id}/read", h.read)
	return r
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	unreadOnly := query.Get(r, "unread") == "true"

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "notification list")
	defer cancel()
	items, err := h.store.List(ctx, su.UserID(), unreadOnly, paging.Limit(r))
	if err != nil {
		h.errLog.Internal(w, r, "failed to list notifications", err)
		return
	}
	jsonutil.OK(w, map[string]any{"items": items})
}

func (h *Handler) count(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "notification count")
	defer cancel()
	n, err := h.store.CountUnread(ctx, su.UserID())
	if err != nil {
		h.errLog.Internal(w, r, "failed to count notifications", err)
		return
	}
	jsonutil.OK(w, map[string]int64{"unread": n})
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	id, ok := jsonutil.ObjectID(w, "notification id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "notification read")
	defer cancel()
	if err := h.store.MarkRead(ctx, su.UserID(), id); err != nil {
		if errors.Is(err, notificationstore.ErrNotFound) {
			jsonutil.NotFound(w, err.Error())
			return
		}
		h.errLog.Internal(w, r, "failed to mark notification read", err)
		return
	}
	jsonutil.NoContent(w)
}

func (h *Handler) readAll(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "notification read all")
	defer cancel()
	n, err := h.store.MarkAllRead(ctx, su.UserID())
	if err != nil {
		h.errLog.Internal(w, r, "failed to mark notifications read", err)
		return
	}
	jsonutil.OK(w, map[string]int64{"marked": n})
}
