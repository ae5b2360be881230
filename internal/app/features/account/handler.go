// Package account lets a signed-in client manage their profile, password
// and saved addresses.
package account

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	addressstore "github.com/dalemusser/visadesk/internal/app/store/addresses"
	"github.com/dalemusser/visadesk/internal/app/store/audit"
	userstore "github.com/dalemusser/visadesk/internal/app/store/users"
	"github.com/dalemusser/visadesk/internal/app/system/auditlog"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/authutil"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/normalize"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Handler struct {
	users     *userstore.Store
	addresses *addressstore.Store
	errLog    *errorsfeature.ErrorLogger
	audit     *auditlog.Logger
	logger    *zap.Logger
}

func NewHandler(db *mongo.Database, errLog *errorsfeature.ErrorLogger, auditLogger *auditlog.Logger, logger *zap.Logger) *Handler {
	return &Handler{
		users:     userstore.New(db),
		addresses: addressstore.New(db, logger),
		errLog:    errLog,
		audit:     auditLogger,
		logger:    logger,
	}
}

// Routes is mounted at /user behind RequireRole(client).
func Routes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Get("/account", h.get)
	r.Patch("/account", h.update)
	r.Post("/account/password", h.changePassword)

	r.Route("/addresses", func(r chi.Router) {
		r.Get("/", h.listAddresses)
		r.Post("/", h.createAddress)
		r.Patch("/{id}", h.updateAddress)
		r.Delete("/{id}", h.deleteAddress)
		r.Post("/{id}/default", h.setDefault)
	})
	return r
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "account get")
	defer cancel()

	u, err := h.users.GetByID(ctx, su.UserID())
	if errors.Is(err, userstore.ErrNotFound) {
		jsonutil.NotFound(w, "account not found")
		return
	}
	if err != nil {
		h.errLog.Internal(w, r, "failed to load account", err)
		return
	}
	jsonutil.OK(w, u)
}

type updateInput struct {
	FullName *string `json:"full_name"`
	Phone    *string `json:"phone"`
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	var in updateInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}

	var upd userstore.UpdateInput
	errs := map[string]string{}
	if in.FullName != nil {
		name := normalize.Name(*in.FullName)
		if name == "" || utf8.RuneCountInString(name) > authutil.MaxNameLength {
			errs["full_name"] = "Full name is required and must be at most 120 characters."
		}
		upd.FullName = &name
	}
	if in.Phone != nil {
		phone := normalize.Phone(*in.Phone)
		if strings.TrimSpace(*in.Phone) != "" && phone == "" {
			errs["phone"] = "Phone must contain digits."
		}
		upd.Phone = &phone
	}
	if len(errs) > 0 {
		jsonutil.ValidationError(w, errs)
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "account update")
	defer cancel()
	u, err := h.users.Update(ctx, su.UserID(), upd)
	if errors.Is(err, userstore.ErrNotFound) {
		jsonutil.NotFound(w, "account not found")
		return
	}
	if err != nil {
		h.errLog.Internal(w, r, "failed to update account", err)
		return
	}
	jsonutil.OK(w, u)
}

type passwordInput struct {
	Current string `json:"current"`
	New     string `json:"new"`
}

// changePassword re-checks the current password before setting a new one.
func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	brand := tenant.MustBrand(r)
	var in passwordInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Short(), h.logger, "password change")
	defer cancel()

	u, err := h.users.GetByID(ctx, su.UserID())
	if errors.Is(err, userstore.ErrNotFound) {
		jsonutil.NotFound(w, "account not found")
		return
	}
	if err != nil {
		h.errLog.Internal(w, r, "failed to load account", err)
		return
	}
	if u.PasswordHash == nil {
		jsonutil.BadRequest(w, "this account signs in with single sign-on")
		return
	}
	if !authutil.CheckPassword(in.Current, *u.PasswordHash) {
		jsonutil.ValidationError(w, map[string]string{"current": "Current password is incorrect."})
		return
	}
	if err := authutil.ValidatePassword(in.New); err != nil {
		jsonutil.ValidationError(w, map[string]string{"new": err.Error()})
		return
	}

	hash, err := authutil.HashPassword(in.New)
	if err != nil {
		h.errLog.Internal(w, r, "failed to hash password", err)
		return
	}
	if err := h.users.UpdatePassword(ctx, u.ID, hash); err != nil {
		h.errLog.Internal(w, r, "failed to update password", err)
		return
	}
	h.audit.Auth(r, &brand.ID, &u.ID, audit.EventPasswordChanged, nil)
	jsonutil.NoContent(w)
}
