package cases

import (
	"net/http"
	"strconv"

	casestore "github.com/dalemusser/visadesk/internal/app/store/cases"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/paging"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

func boolParam(r *http.Request, name string) (bool, bool) {
	s := query.Get(r, name)
	if s == "" {
		return false, true
	}
	b, err := strconv.ParseBool(s)
	return b, err == nil
}

// list serves the staff case list, newest first, paged by cursor.
func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)

	f := casestore.AdminFilter{Q: query.Get(r, "q")}
	if st := query.Get(r, "status"); st != "" {
		if !models.IsValidCaseStatus(st) || st == models.CaseDraft {
			jsonutil.BadRequest(w, "invalid status")
			return
		}
		f.Status = st
	}
	var ok bool
	if f.Archived, ok = boolParam(r, "archived"); !ok {
		jsonutil.BadRequest(w, "invalid archived")
		return
	}
	if f.Deleted, ok = boolParam(r, "deleted"); !ok {
		jsonutil.BadRequest(w, "invalid deleted")
		return
	}
	if raw := query.Get(r, "assigned_to"); raw != "" {
		id, ok := jsonutil.ObjectID(w, "assigned_to", raw)
		if !ok {
			return
		}
		f.AssignedTo = &id
	}
	if isAgent(su) {
		self := su.UserID()
		f.AssignedTo = &self
	}
	page, err := paging.ParseNewest(r)
	if err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "case list")
	defer cancel()
	res, err := h.cases.List(ctx, brand.ID, f, page)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list cases", err)
		return
	}

	ids := make([]primitive.ObjectID, 0, len(res.Items))
	for _, c := range res.Items {
		if c.AssignedTo != nil {
			ids = append(ids, *c.AssignedTo)
		}
	}
	names, err := h.users.Names(ctx, ids)
	if err != nil {
		// Names are decoration; the list is still useful without them.
		h.logger.Warn("failed to load assignee names", zap.Error(err))
	}
	out := paging.Page[caseView]{Items: make([]caseView, 0, len(res.Items)), NextCursor: res.NextCursor}
	for _, c := range res.Items {
		v := view(c)
		if c.AssignedTo != nil {
			v.AssigneeName = names[*c.AssignedTo]
		}
		out.Items = append(out.Items, v)
	}
	jsonutil.OK(w, out)
}

// get shows one case. Deleted cases stay reachable so they can be restored.
func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "case get")
	defer cancel()
	c, ok := h.load(ctx, w, r, true)
	if !ok {
		return
	}
	v := view(c)
	if c.AssignedTo != nil {
		if u, err := h.users.GetByID(ctx, *c.AssignedTo); err == nil {
			v.AssigneeName = u.FullName
		}
	}
	jsonutil.OK(w, v)
}
