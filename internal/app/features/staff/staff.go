// internal/app/features/staff/staff.go
package staff

import (
	"context"
	"errors"
	"net/http"
	"strings"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	"github.com/dalemusser/visadesk/internal/app/store/audit"
	lbstore "github.com/dalemusser/visadesk/internal/app/store/loadbalancer"
	userstore "github.com/dalemusser/visadesk/internal/app/store/users"
	"github.com/dalemusser/visadesk/internal/app/system/auditlog"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/authutil"
	"github.com/dalemusser/visadesk/internal/app/system/casenotify"
	"github.com/dalemusser/visadesk/internal/app/system/inputval"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/normalize"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/waffle/pantry/query"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// Handler provides brand staff management.
type Handler struct {
	users    *userstore.Store
	weights  *lbstore.Store
	notifier *casenotify.Notifier
	errLog   *errorsfeature.ErrorLogger
	audit    *auditlog.Logger
	logger   *zap.Logger
}

func NewHandler(db *mongo.Database, notifier *casenotify.Notifier, errLog *errorsfeature.ErrorLogger, auditLogger *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		users:    userstore.New(db),
		weights:  lbstore.New(db),
		notifier: notifier,
		errLog:   errLog,
		audit:    auditLogger,
		logger:   logger,
	}
}

// RolesRoutes is mounted at /admin/roles.
func RolesRoutes(sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireStaff)
	r.Get("/", roles)
	return r
}

// Routes is mounted at /admin/staff. Managers may look; only admins change.
func Routes(h *Handler, sm *auth.SessionManager) http.Handler {
	r := chi.NewRouter()
	r.Use(sm.RequireManager)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Group(func(r chi.Router) {
		r.Use(sm.RequireAdmin)
		r.Post("/", h.create)
		r.Patch("/{id}", h.update)
		r.Delete("/{id}", h.delete)
	})
	return r
}

func roles(w http.ResponseWriter, r *http.Request) {
	jsonutil.OK(w, map[string]any{"roles": models.Roles, "grantable": models.StaffRoles()})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	f := userstore.StaffFilter{
		Role:   normalize.Role(query.Get(r, "role")),
		Status: normalize.Status(query.Get(r, "status")),
		Q:      query.Get(r, "q"),
	}
	if f.Role != "" && !inputval.IsGrantableRole(f.Role) {
		jsonutil.BadRequest(w, "invalid role")
		return
	}
	if f.Status != "" && !models.IsValidStatus(f.Status) {
		jsonutil.BadRequest(w, "invalid status")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "staff list")
	defer cancel()
	users, err := h.users.ListStaff(ctx, brand.ID, f)
	if err != nil {
		h.errLog.Internal(w, r, "failed to list staff", err)
		return
	}
	jsonutil.OK(w, map[string]any{"items": users})
}

// load fetches the staff member named by {id} in the current brand.
// Clients of the brand are not staff and look missing.
func (h *Handler) load(ctx context.Context, w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	brand := tenant.MustBrand(r)
	id, ok := jsonutil.ObjectID(w, "user id", chi.URLParam(r, "id"))
	if !ok {
		return nil, false
	}
	u, err := h.users.GetInBrand(ctx, brand.ID, id)
	if err == nil && !inputval.IsGrantableRole(u.Role) {
		err = userstore.ErrNotFound
	}
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			jsonutil.NotFound(w, "staff member not found")
		} else {
			h.errLog.Internal(w, r, "failed to load staff member", err)
		}
		return nil, false
	}
	return u, true
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "staff get")
	defer cancel()
	u, ok := h.load(ctx, w, r)
	if !ok {
		return
	}
	jsonutil.OK(w, u)
}

type createInput struct {
	FullName string `json:"full_name" validate:"required,max=120" label:"Full name"`
	Email    string `json:"email" validate:"required,email,max=254" label:"Email"`
	Phone    string `json:"phone" validate:"max=20" label:"Phone"`
	Role     string `json:"role" validate:"required,staffrole" label:"Role"`
	Password string `json:"password"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	var in createInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	in.FullName = normalize.Name(in.FullName)
	in.Email = normalize.Email(in.Email)
	in.Phone = normalize.Phone(in.Phone)
	in.Role = normalize.Role(in.Role)
	res := inputval.Validate(in)
	if err := authutil.ValidatePassword(in.Password); err != nil {
		res.Add("password", err.Error())
	}
	if res.HasErrors() {
		jsonutil.ValidationError(w, res.Fields())
		return
	}
	hash, err := authutil.HashPassword(in.Password)
	if err != nil {
		h.errLog.Internal(w, r, "failed to hash password", err)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "staff create")
	defer cancel()
	brandID := brand.ID
	u, err := h.users.Create(ctx, models.User{
		BrandID:      &brandID,
		FullName:     in.FullName,
		Email:        in.Email,
		Phone:        in.Phone,
		AuthMethod:   models.AuthPassword,
		PasswordHash: &hash,
		Role:         in.Role,
		Status:       models.StatusActive,
	})
	if err != nil {
		if errors.Is(err, userstore.ErrDuplicateEmail) {
			jsonutil.Conflict(w, err.Error())
			return
		}
		h.errLog.Internal(w, r, "failed to create staff member", err)
		return
	}
	actor := su.UserID()
	h.audit.Admin(r, &brandID, &actor, &u.ID, audit.EventUserCreated, map[string]string{"role": u.Role})
	h.notifier.Welcome(ctx, brand, u)
	jsonutil.Created(w, u)
}

type updateInput struct {
	FullName *string `json:"full_name"`
	Phone    *string `json:"phone"`
	Role     *string `json:"role"`
	Status   *string `json:"status"`
	Password *string `json:"password"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	var in updateInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}

	upd := userstore.UpdateInput{}
	fields := map[string]string{}
	if in.FullName != nil {
		name := normalize.Name(*in.FullName)
		if name == "" || len([]rune(name)) > authutil.MaxNameLength {
			fields["full_name"] = "Full name must be between 1 and 120 characters."
		}
		upd.FullName = &name
	}
	if in.Phone != nil {
		phone := normalize.Phone(*in.Phone)
		if len(phone) > authutil.MaxPhoneLength {
			fields["phone"] = "Phone number is too long."
		}
		upd.Phone = &phone
	}
	if in.Role != nil {
		role := normalize.Role(*in.Role)
		if !inputval.IsGrantableRole(role) {
			fields["role"] = "Role must be one of: " + strings.Join(models.StaffRoles(), ", ") + "."
		}
		upd.Role = &role
	}
	if in.Status != nil {
		st := normalize.Status(*in.Status)
		if !models.IsValidStatus(st) {
			fields["status"] = "Status must be active or disabled."
		}
		upd.Status = &st
	}
	if in.Password != nil {
		if err := authutil.ValidatePassword(*in.Password); err != nil {
			fields["password"] = err.Error()
		} else {
			hash, err := authutil.HashPassword(*in.Password)
			if err != nil {
				h.errLog.Internal(w, r, "failed to hash password", err)
				return
			}
			upd.PasswordHash = &hash
		}
	}
	if len(fields) > 0 {
		jsonutil.ValidationError(w, fields)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "staff update")
	defer cancel()
	target, ok := h.load(ctx, w, r)
	if !ok {
		return
	}
	self := target.ID == su.UserID()
	if self && upd.Status != nil && *upd.Status != models.StatusActive {
		jsonutil.Conflict(w, "you cannot disable your own account")
		return
	}
	demoted := upd.Role != nil && *upd.Role != models.RoleAdmin
	disabled := upd.Status != nil && *upd.Status != models.StatusActive
	if (demoted || disabled) && !h.checkLastAdmin(ctx, w, r, target) {
		return
	}
	if disabled && !h.checkUnweighted(ctx, w, r, target) {
		return
	}

	u, err := h.users.Update(ctx, target.ID, upd)
	if err != nil {
		if errors.Is(err, userstore.ErrNotFound) {
			jsonutil.NotFound(w, "staff member not found")
			return
		}
		h.errLog.Internal(w, r, "failed to update staff member", err)
		return
	}
	actor := su.UserID()
	details := map[string]string{}
	if upd.Role != nil && *upd.Role != target.Role {
		details["role"] = target.Role + " -> " + *upd.Role
	}
	if upd.Status != nil && *upd.Status != target.Status {
		details["status"] = target.Status + " -> " + *upd.Status
	}
	if upd.PasswordHash != nil {
		details["password"] = "reset"
	}
	h.audit.Admin(r, &brand.ID, &actor, &u.ID, audit.EventUserUpdated, details)
	jsonutil.OK(w, u)
}

// checkLastAdmin answers 409 when target is the brand's only active admin.
func (h *Handler) checkLastAdmin(ctx context.Context, w http.ResponseWriter, r *http.Request, target *models.User) bool {
	if target.Role != models.RoleAdmin || target.Status != models.StatusActive {
		return true
	}
	n, err := h.users.CountActiveAdmins(ctx, *target.BrandID)
	if err != nil {
		h.errLog.Internal(w, r, "failed to count admins", err)
		return false
	}
	if n <= 1 {
		jsonutil.Conflict(w, "a brand must keep at least one active admin")
		return false
	}
	return true
}

// checkUnweighted answers 409 while target still has a load balancer
// weight. Processors must stay active staff of the brand.
func (h *Handler) checkUnweighted(ctx context.Context, w http.ResponseWriter, r *http.Request, target *models.User) bool {
	weighted, err := h.weights.HasWeight(ctx, *target.BrandID, target.ID)
	if err != nil {
		h.errLog.Internal(w, r, "failed to check load balancer", err)
		return false
	}
	if weighted {
		jsonutil.Conflict(w, "remove this processor from the load balancer first")
		return false
	}
	return true
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	su, _ := auth.CurrentUser(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.logger, "staff delete")
	defer cancel()
	target, ok := h.load(ctx, w, r)
	if !ok {
		return
	}
	if target.ID == su.UserID() {
		jsonutil.Conflict(w, "you cannot delete your own account")
		return
	}
	if !h.checkLastAdmin(ctx, w, r, target) {
		return
	}
	if !h.checkUnweighted(ctx, w, r, target) {
		return
	}
	if _, err := h.users.Delete(ctx, target.ID); err != nil {
		h.errLog.Internal(w, r, "failed to delete staff member", err)
		return
	}
	actor := su.UserID()
	h.audit.Admin(r, &brand.ID, &actor, &target.ID, audit.EventUserDeleted, map[string]string{"email": target.Email})
	jsonutil.NoContent(w)
}
