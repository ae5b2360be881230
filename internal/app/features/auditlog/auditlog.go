// internal/app/features/auditlog/auditlog.go
package auditlog

import (
	"net/http"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	"github.com/dalemusser/visadesk/internal/app/store/audit"
	userstore "github.com/dalemusser/visadesk/internal/app/store/users"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/paging"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler provides audit log handlers.
type Handler struct {
	auditStore *audit.Store
	userStore  *userstore.Store
	errLog     *errorsfeature.ErrorLogger
	logger     *zap.Logger
}

// NewHandler creates a new audit log Handler.
func NewHandler(
	db *mongo.Database,
	errLog *errorsfeature.ErrorLogger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		auditStore: audit.New(db),
		userStore:  userstore.New(db),
		errLog:     errLog,
		logger:     logger,
	}
}

// item is one audit event with actor and subject names resolved.
type item struct {
	audit.Event
	ActorName string `json:"actor_name,omitempty"`
	UserName  string `json:"user_name,omitempty"`
}

// eventTypesForCategory returns the event types of a category, or all of
// them for "". Unknown categories give nil.
func eventTypesForCategory(category string) []string {
	authEvents := []string{
		audit.EventLoginSuccess,
		audit.EventLoginFailedUserNotFound,
		audit.EventLoginFailedWrongPassword,
		audit.EventLoginFailedUserDisabled,
		audit.EventLoginFailedWrongRole,
		audit.EventLoginLockedOut,
		audit.EventLogout,
		audit.EventRegistered,
		audit.EventSSOLogin,
		audit.EventSSOFailed,
		audit.EventPasswordChanged,
	}
	adminEvents := []string{
		audit.EventUserCreated,
		audit.EventUserUpdated,
		audit.EventUserDeleted,
		audit.EventBrandCreated,
		audit.EventBrandUpdated,
		audit.EventContentUpdated,
		audit.EventCatalogUpdated,
		audit.EventWeightsUpdated,
		audit.EventCountryAccessSet,
		audit.EventLOAUploaded,
		audit.EventLOADeleted,
	}
	caseEvents := []string{
		audit.EventCaseSubmitted,
		audit.EventCaseStatusChanged,
		audit.EventCaseAssigned,
		audit.EventCaseArchived,
		audit.EventCaseDeleted,
		audit.EventCaseRestored,
		audit.EventCasePayment,
	}

	switch category {
	case audit.CategoryAuth:
		return authEvents
	case audit.CategoryAdmin:
		return adminEvents
	case audit.CategoryCase:
		return caseEvents
	case "":
		all := make([]string, 0, len(authEvents)+len(adminEvents)+len(caseEvents))
		all = append(all, authEvents...)
		all = append(all, adminEvents...)
		return append(all, caseEvents...)
	default:
		return nil
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Routes returns a chi.Router with audit log routes mounted.
func Routes(h *Handler, sessionMgr *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sessionMgr.RequireAdmin)
	r.Get("/", h.list)
	r.Get("/event-types", h.eventTypes)
	return r
}

func (h *Handler) eventTypes(w http.ResponseWriter, r *http.Request) {
	jsonutil.OK(w, map[string][]string{
		audit.CategoryAuth:  eventTypesForCategory(audit.CategoryAuth),
		audit.CategoryAdmin: eventTypesForCategory(audit.CategoryAdmin),
		audit.CategoryCase:  eventTypesForCategory(audit.CategoryCase),
	})
}

// list returns audit events newest first. Brand admins are pinned to the
// brand they are signed in to; superadmins see every brand.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	category := query.Get(r, "category")
	eventType := query.Get(r, "event_type")

	types := eventTypesForCategory(category)
	if types == nil {
		jsonutil.BadRequest(w, "unknown category")
		return
	}
	if eventType != "" && !contains(types, eventType) {
		jsonutil.BadRequest(w, "unknown event type")
		return
	}

	filter := audit.QueryFilter{
		Category:  category,
		EventType: eventType,
		Limit:     paging.Limit(r),
		Offset:    paging.Offset(r),
	}
	if raw := query.Get(r, "user_id"); raw != "" {
		uid, ok := jsonutil.ObjectID(w, "user_id", raw)
		if !ok {
			return
		}
		filter.UserID = &uid
	}
	if !su.IsSuperAdmin() {
		brandID := tenant.MustBrand(r).ID
		filter.BrandID = &brandID
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "audit list")
	defer cancel()

	events, err := h.auditStore.Query(ctx, filter)
	if err != nil {
		h.errLog.Internal(w, r, "failed to query audit events", err)
		return
	}
	total, err := h.auditStore.Count(ctx, filter)
	if err != nil {
		h.logger.Warn("failed to count audit events", zap.Error(err))
		total = -1
	}

	// Batch fetch user names.
	seen := make(map[primitive.ObjectID]struct{})
	ids := []primitive.ObjectID{}
	for _, e := range events {
		for _, id := range []*primitive.ObjectID{e.ActorID, e.UserID} {
			if id == nil {
				continue
			}
			if _, ok := seen[*id]; !ok {
				seen[*id] = struct{}{}
				ids = append(ids, *id)
			}
		}
	}
	names := map[primitive.ObjectID]string{}
	if len(ids) > 0 {
		if names, err = h.userStore.Names(ctx, ids); err != nil {
			h.logger.Warn("failed to fetch user names for audit log", zap.Error(err))
			names = map[primitive.ObjectID]string{}
		}
	}

	items := make([]item, 0, len(events))
	for _, e := range events {
		it := item{Event: e}
		// Deleted users resolve to a blank name rather than a raw id.
		if e.ActorID != nil {
			it.ActorName = names[*e.ActorID]
		} else if e.UserID != nil && e.Category == audit.CategoryAuth {
			// Auth events are performed by the user they concern.
			it.ActorName = names[*e.UserID]
		}
		if e.UserID != nil {
			it.UserName = names[*e.UserID]
		}
		items = append(items, it)
	}

	jsonutil.OK(w, map[string]any{
		"items":  items,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}
