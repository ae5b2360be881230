// Package messages is the per-case chat between a client and staff.
// Clients poll with ?after=<last message id>.
package messages

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	casestore "github.com/dalemusser/visadesk/internal/app/store/cases"
	messagestore "github.com/dalemusser/visadesk/internal/app/store/messages"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/casenotify"
	"github.com/dalemusser/visadesk/internal/app/system/htmlsanitize"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Handler struct {
	cases    *casestore.Store
	messages *messagestore.Store
	notifier *casenotify.Notifier
	errLog   *errorsfeature.ErrorLogger
	logger   *zap.Logger
}

func NewHandler(db *mongo.Database, notifier *casenotify.Notifier, errLog *errorsfeature.ErrorLogger, logger *zap.Logger) *Handler {
	return &Handler{
		cases:    casestore.New(db),
		messages: messagestore.New(db),
		notifier: notifier,
		errLog:   errLog,
		logger:   logger,
	}
}

// ClientRoutes is mounted at /user/applications/{id}/messages.
func ClientRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.list(models.SideClient))
	r.Post("/", h.post(models.SideClient))
	return r
}

// StaffRoutes is mounted at /admin/cases/{id}/messages.
func StaffRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/", h.list(models.SideStaff))
	r.Post("/", h.post(models.SideStaff))
	return r
}

// UnreadRoutes is mounted at /admin/messages.
func UnreadRoutes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireStaff)
	r.Get("/unread", h.unread)
	return r
}

// load fetches the case named by {id} as seen from side. Clients only
// reach their own cases; agents only the cases assigned to them.
func (h *Handler) load(ctx context.Context, w http.ResponseWriter, r *http.Request, side string) (models.Case, bool) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	id, ok := jsonutil.ObjectID(w, "case id", chi.URLParam(r, "id"))
	if !ok {
		return models.Case{}, false
	}

	var c models.Case
	var err error
	if side == models.SideClient {
		c, err = h.cases.GetForClient(ctx, brand.ID, su.UserID(), id)
	} else {
		c, err = h.cases.Get(ctx, brand.ID, id)
		if err == nil && (c.IsDeleted || c.Status == models.CaseDraft) {
			err = casestore.ErrNotFound
		}
		if err == nil && su.Role == models.RoleAgent && (c.AssignedTo == nil || *c.AssignedTo != su.UserID()) {
			err = casestore.ErrNotFound
		}
	}
	if err != nil {
		if errors.Is(err, casestore.ErrNotFound) {
			jsonutil.NotFound(w, "case not found")
		} else {
			h.errLog.Internal(w, r, "failed to load case", err)
		}
		return models.Case{}, false
	}
	return c, true
}

// list returns messages after the optional cursor and marks the case
// read for side.
func (h *Handler) list(side string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		brand := tenant.MustBrand(r)
		var after *primitive.ObjectID
		if raw := query.Get(r, "after"); raw != "" {
			id, ok := jsonutil.ObjectID(w, "after", raw)
			if !ok {
				return
			}
			after = &id
		}

		ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "message list")
		defer cancel()
		c, ok := h.load(ctx, w, r, side)
		if !ok {
			return
		}
		msgs, err := h.messages.List(ctx, brand.ID, c.ID, after)
		if err != nil {
			h.errLog.Internal(w, r, "failed to list messages", err)
			return
		}
		// Read up to the newest message returned, not up to now: a capped
		// page or a message posted meanwhile stays unread.
		if n := len(msgs); n > 0 {
			if err := h.cases.MarkRead(ctx, brand.ID, c.ID, side, msgs[n-1].CreatedAt); err != nil {
				h.logger.Warn("failed to mark case read",
					zap.String("case_id", c.ID.Hex()), zap.String("side", side), zap.Error(err))
			}
		}
		jsonutil.OK(w, map[string]any{"items": msgs})
	}
}

type postInput struct {
	Body string `json:"body"`
}

func (h *Handler) post(side string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		brand := tenant.MustBrand(r)
		su, _ := auth.CurrentUser(r)

		var in postInput
		if err := jsonutil.Decode(r, &in); err != nil {
			jsonutil.BadRequest(w, err.Error())
			return
		}
		body := htmlsanitize.Text(strings.TrimSpace(in.Body))
		if n := utf8.RuneCountInString(body); n == 0 || n > models.MaxMessageLength {
			jsonutil.ValidationError(w, map[string]string{"body": "Message must be between 1 and 4000 characters."})
			return
		}

		ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "message post")
		defer cancel()
		c, ok := h.load(ctx, w, r, side)
		if !ok {
			return
		}
		m, err := h.messages.Create(ctx, models.Message{
			BrandID:    brand.ID,
			CaseID:     c.ID,
			SenderID:   su.UserID(),
			SenderRole: side,
			SenderName: su.Name,
			Body:       body,
		})
		if err != nil {
			h.errLog.Internal(w, r, "failed to post message", err)
			return
		}
		if err := h.cases.TouchMessage(ctx, brand.ID, c.ID, m.CreatedAt); err != nil {
			h.logger.Warn("failed to touch case", zap.String("case_id", c.ID.Hex()), zap.Error(err))
		}
		// The sender has obviously seen everything up to their own message.
		if err := h.cases.MarkRead(ctx, brand.ID, c.ID, side, m.CreatedAt); err != nil {
			h.logger.Warn("failed to mark case read", zap.String("case_id", c.ID.Hex()), zap.Error(err))
		}
		h.notifier.MessagePosted(ctx, brand, c, m)
		jsonutil.Created(w, m)
	}
}

type unreadRow struct {
	CaseID primitive.ObjectID `json:"case_id"`
	Number string             `json:"number"`
	Status string             `json:"status"`
	Unread int64              `json:"unread"`
}

// unread lists the current staff user's cases with unread client messages.
func (h *Handler) unread(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	var assignee *primitive.ObjectID
	if su.Role == models.RoleAgent {
		self := su.UserID()
		assignee = &self
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "unread messages")
	defer cancel()
	cases, err := h.cases.ForStaffChat(ctx, brand.ID, assignee)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list cases", err)
		return
	}
	counts, err := h.messages.Unread(ctx, brand.ID, cases, models.SideStaff)
	if err != nil {
		h.errLog.Internal(w, r, "failed to count unread messages", err)
		return
	}
	rows := []unreadRow{}
	var total int64
	for _, c := range cases {
		n := counts[c.ID]
		if n == 0 {
			continue
		}
		total += n
		rows = append(rows, unreadRow{CaseID: c.ID, Number: c.Number, Status: c.Status, Unread: n})
	}
	jsonutil.OK(w, map[string]any{"items": rows, "total": total})
}
