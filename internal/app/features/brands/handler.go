// Package brands lets superadmins manage tenants and serves the public
// brand card every front end loads first.
package brands

import (
	"errors"
	"net/http"
	"strings"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	"github.com/dalemusser/visadesk/internal/app/store/audit"
	brandstore "github.com/dalemusser/visadesk/internal/app/store/brands"
	"github.com/dalemusser/visadesk/internal/app/system/auditlog"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/inputval"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/normalize"
	"github.com/dalemusser/visadesk/internal/app/system/seeding"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Handler struct {
	db     *mongo.Database
	brands *brandstore.Store
	errLog *errorsfeature.ErrorLogger
	audit  *auditlog.Logger
	logger *zap.Logger
}

func NewHandler(db *mongo.Database, errLog *errorsfeature.ErrorLogger, auditLogger *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		db:     db,
		brands: brandstore.New(db),
		errLog: errLog,
		audit:  auditLogger,
		logger: logger,
	}
}

// AdminRoutes is mounted at /admin/brands.
func AdminRoutes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireSuperAdmin)
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{id}", h.get)
	r.Patch("/{id}", h.update)
	return r
}

// Public serves GET /common/brand.
func (h *Handler) Public(w http.ResponseWriter, r *http.Request) {
	b := tenant.MustBrand(r)
	jsonutil.OK(w, models.PublicBrand{
		Slug:         b.Slug,
		Name:         b.Name,
		SupportEmail: b.SupportEmail,
		Currency:     b.Currency,
	})
}

func writeBrandError(w http.ResponseWriter, err error) bool {
	switch {
	case errors.Is(err, brandstore.ErrNotFound):
		jsonutil.NotFound(w, err.Error())
	case errors.Is(err, brandstore.ErrDuplicate):
		jsonutil.Conflict(w, err.Error())
	default:
		return false
	}
	return true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "brand list")
	defer cancel()
	list, err := h.brands.List(ctx)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list brands", err)
		return
	}
	jsonutil.OK(w, map[string]any{"items": list})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := jsonutil.ObjectID(w, "brand id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "brand get")
	defer cancel()
	b, err := h.brands.GetByID(ctx, id)
	if err != nil {
		if !writeBrandError(w, err) {
			h.errLog.Internal(w, r, "failed to load brand", err)
		}
		return
	}
	jsonutil.OK(w, b)
}

type createInput struct {
	Slug         string   `json:"slug" validate:"required,slug" label:"Slug"`
	Name         string   `json:"name" validate:"required,max=120" label:"Name"`
	Domains      []string `json:"domains"`
	CasePrefix   string   `json:"case_prefix" validate:"required,caseprefix" label:"Case prefix"`
	SupportEmail string   `json:"support_email" validate:"max=254" label:"Support email"`
	Currency     string   `json:"currency"`
}

// checkCommon validates the fields create and update share.
func checkCommon(res *inputval.Result, supportEmail, currency string, domains []string) {
	if supportEmail != "" && !inputval.IsValidEmail(supportEmail) {
		res.Add("support_email", "Support email must be a valid email address.")
	}
	if currency != "" && normalize.Currency(currency) == "" {
		res.Add("currency", "Currency must be a three-letter ISO 4217 code.")
	}
	for _, d := range domains {
		if d = strings.TrimSpace(d); d == "" || strings.ContainsAny(d, "/: ") {
			res.Add("domains", "Domains must be bare host names.")
			break
		}
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	var in createInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	in.Slug = normalize.Slug(in.Slug)
	in.Name = normalize.Name(in.Name)
	in.CasePrefix = strings.ToUpper(strings.TrimSpace(in.CasePrefix))
	in.SupportEmail = normalize.Email(in.SupportEmail)
	res := inputval.Validate(in)
	checkCommon(res, in.SupportEmail, in.Currency, in.Domains)
	if res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "brand create")
	defer cancel()
	b, err := h.brands.Create(ctx, models.Brand{
		Slug:         in.Slug,
		Name:         in.Name,
		Domains:      in.Domains,
		CasePrefix:   in.CasePrefix,
		SupportEmail: in.SupportEmail,
		Currency:     in.Currency,
	})
	if err != nil {
		if !writeBrandError(w, err) {
			h.errLog.Internal(w, r, "failed to create brand", err)
		}
		return
	}
	// A brand without levels or types cannot take applications.
	if err := seeding.SeedCatalog(ctx, h.db, b.ID, h.logger); err != nil {
		h.logger.Warn("failed to seed brand catalog", zap.String("brand", b.Slug), zap.Error(err))
	}
	actor := su.UserID()
	h.audit.Admin(r, &b.ID, &actor, nil, audit.EventBrandCreated, map[string]string{"slug": b.Slug})
	jsonutil.Created(w, b)
}

type updateInput struct {
	Name         *string   `json:"name"`
	Domains      *[]string `json:"domains"`
	Status       *string   `json:"status"`
	CasePrefix   *string   `json:"case_prefix"`
	SupportEmail *string   `json:"support_email"`
	Currency     *string   `json:"currency"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	id, ok := jsonutil.ObjectID(w, "brand id", chi.URLParam(r, "id"))
	if !ok {
		return
	}
	var in updateInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}

	res := &inputval.Result{}
	if in.Name != nil {
		if n := normalize.Name(*in.Name); n == "" || len([]rune(n)) > 120 {
			res.Add("name", "Name must be between 1 and 120 characters.")
		}
	}
	if in.Status != nil && !models.IsValidStatus(normalize.Status(*in.Status)) {
		res.Add("status", "Status must be active or disabled.")
	}
	if in.CasePrefix != nil && !inputval.IsCasePrefix(strings.ToUpper(strings.TrimSpace(*in.CasePrefix))) {
		res.Add("case_prefix", "Case prefix must be 2 to 5 letters.")
	}
	var email, currency string
	var domains []string
	if in.SupportEmail != nil {
		email = normalize.Email(*in.SupportEmail)
	}
	if in.Currency != nil {
		currency = *in.Currency
		if strings.TrimSpace(currency) == "" {
			res.Add("currency", "Currency is required.")
		}
	}
	if in.Domains != nil {
		domains = *in.Domains
	}
	checkCommon(res, email, currency, domains)
	if res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "brand update")
	defer cancel()
	b, err := h.brands.Update(ctx, id, brandstore.Update{
		Name:         in.Name,
		Domains:      in.Domains,
		Status:       in.Status,
		CasePrefix:   in.CasePrefix,
		SupportEmail: in.SupportEmail,
		Currency:     in.Currency,
	})
	if err != nil {
		if !writeBrandError(w, err) {
			h.errLog.Internal(w, r, "failed to update brand", err)
		}
		return
	}
	actor := su.UserID()
	h.audit.Admin(r, &b.ID, &actor, nil, audit.EventBrandUpdated, nil)
	jsonutil.OK(w, b)
}
