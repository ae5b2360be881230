// Package authapi signs clients and staff in and out.
//
// Clients use /user/auth, staff and superadmins use /admin/auth. Both
// share the session cookie; the role decides which routes accept it.
package authapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	"github.com/dalemusser/visadesk/internal/app/store/audit"
	"github.com/dalemusser/visadesk/internal/app/store/ratelimit"
	userstore "github.com/dalemusser/visadesk/internal/app/store/users"
	"github.com/dalemusser/visadesk/internal/app/system/auditlog"
	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/authutil"
	"github.com/dalemusser/visadesk/internal/app/system/casenotify"
	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/normalize"
	"github.com/dalemusser/visadesk/internal/app/system/sso"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// msgBadCredentials is the same for unknown emails and wrong passwords.
const msgBadCredentials = "invalid email or password"

// Handler provides the sign-in endpoints.
type Handler struct {
	users      *userstore.Store
	limiter    *ratelimit.Store // nil when rate limiting is disabled
	sessionMgr *auth.SessionManager
	sso        *sso.Multi
	notifier   *casenotify.Notifier
	errLog     *errorsfeature.ErrorLogger
	audit      *auditlog.Logger
	logger     *zap.Logger
}

// NewHandler creates the auth Handler. limiter, multi and notifier may be nil.
func NewHandler(
	db *mongo.Database,
	sessionMgr *auth.SessionManager,
	limiter *ratelimit.Store,
	multi *sso.Multi,
	notifier *casenotify.Notifier,
	errLog *errorsfeature.ErrorLogger,
	auditLogger *auditlog.Logger,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		users:      userstore.New(db),
		limiter:    limiter,
		sessionMgr: sessionMgr,
		sso:        multi,
		notifier:   notifier,
		errLog:     errLog,
		audit:      auditLogger,
		logger:     logger,
	}
}

// UserRoutes is mounted at /user/auth.
func UserRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/register", h.register)
	r.Post("/login", h.clientLogin)
	r.Post("/sso", h.ssoLogin)
	r.Post("/logout", h.logout)
	r.With(h.sessionMgr.RequireRole(models.RoleClient)).Get("/me", h.me)
	return r
}

// AdminRoutes is mounted at /admin/auth.
func AdminRoutes(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Post("/login", h.staffLogin)
	r.Post("/logout", h.logout)
	r.With(h.sessionMgr.RequireStaff).Get("/me", h.me)
	return r
}

type meResponse struct {
	User  *models.User        `json:"user"`
	Brand *models.PublicBrand `json:"brand,omitempty"`
}

func brandPublic(b *tenant.Info) *models.PublicBrand {
	pb := models.Brand{Slug: b.Slug, Name: b.Name, SupportEmail: b.SupportEmail, Currency: b.Currency}.Public()
	return &pb
}

func sessionBrand(u *models.User) primitive.ObjectID {
	if u.BrandID == nil {
		return primitive.NilObjectID
	}
	return *u.BrandID
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) clientLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, false)
}

func (h *Handler) staffLogin(w http.ResponseWriter, r *http.Request) {
	h.login(w, r, true)
}

// login checks email and password against the request brand. Staff
// logins also accept superadmins, who may sign into any brand.
func (h *Handler) login(w http.ResponseWriter, r *http.Request, staff bool) {
	brand := tenant.MustBrand(r)
	var in credentials
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	email := normalize.Email(in.Email)
	if email == "" || in.Password == "" {
		jsonutil.ValidationError(w, map[string]string{"email": "Email and password are required."})
		return
	}

	key := ratelimit.Key(&brand.ID, email)
	if h.locked(w, r, brand, key, email) {
		return
	}

	u, err := h.users.GetByEmail(r.Context(), &brand.ID, email)
	if staff && errors.Is(err, userstore.ErrNotFound) {
		u, err = h.users.GetSuperAdminByEmail(r.Context(), email)
	}
	if errors.Is(err, userstore.ErrNotFound) {
		authutil.CheckPasswordMissingUser(in.Password)
		h.audit.AuthFailed(r, &brand.ID, nil, audit.EventLoginFailedUserNotFound, "user not found", map[string]string{"email": email})
		h.failed(w, r, key)
		return
	}
	if err != nil {
		h.errLog.Internal(w, r, "login lookup failed", err)
		return
	}

	if u.PasswordHash == nil || !authutil.CheckPassword(in.Password, *u.PasswordHash) {
		h.audit.AuthFailed(r, &brand.ID, &u.ID, audit.EventLoginFailedWrongPassword, "wrong password", nil)
		h.failed(w, r, key)
		return
	}
	if u.Status != models.StatusActive {
		h.audit.AuthFailed(r, &brand.ID, &u.ID, audit.EventLoginFailedUserDisabled, "user disabled", nil)
		jsonutil.Forbidden(w, "account is disabled")
		return
	}
	if staff != models.IsStaffRole(u.Role) {
		h.audit.AuthFailed(r, &brand.ID, &u.ID, audit.EventLoginFailedWrongRole, "wrong portal", map[string]string{"role": u.Role})
		jsonutil.Forbidden(w, "this account cannot sign in here")
		return
	}

	if h.limiter != nil {
		if err := h.limiter.Clear(r.Context(), key); err != nil {
			h.logger.Warn("failed to clear login attempts", zap.Error(err))
		}
	}
	h.signIn(w, r, brand, u, audit.EventLoginSuccess, nil)
}

// locked answers 429 when the email is locked out.
func (h *Handler) locked(w http.ResponseWriter, r *http.Request, brand *tenant.Info, key, email string) bool {
	if h.limiter == nil {
		return false
	}
	st := h.limiter.Check(r.Context(), key)
	if st.Allowed {
		return false
	}
	h.audit.AuthFailed(r, &brand.ID, nil, audit.EventLoginLockedOut, "locked out", map[string]string{"email": email})
	tooMany(w, st)
	return true
}

func tooMany(w http.ResponseWriter, st ratelimit.Status) {
	if st.LockedUntil != nil {
		secs := int(time.Until(*st.LockedUntil).Seconds()) + 1
		if secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
	}
	jsonutil.TooManyRequests(w, "too many failed sign-in attempts, try again later")
}

// failed records a failed attempt and answers 401, or 429 when this
// attempt triggered the lockout.
func (h *Handler) failed(w http.ResponseWriter, r *http.Request, key string) {
	if h.limiter != nil {
		st, err := h.limiter.RecordFailure(r.Context(), key)
		if err != nil {
			h.logger.Warn("failed to record login attempt", zap.Error(err))
		} else if !st.Allowed {
			tooMany(w, st)
			return
		}
	}
	jsonutil.Unauthorized(w, msgBadCredentials)
}

func (h *Handler) signIn(w http.ResponseWriter, r *http.Request, brand *tenant.Info, u *models.User, event string, details map[string]string) {
	if err := h.sessionMgr.CreateSession(w, r, u.ID, sessionBrand(u), u.Role); err != nil {
		h.errLog.Internal(w, r, "failed to create session", err)
		return
	}
	if err := h.users.TouchLogin(r.Context(), u.ID); err != nil {
		h.logger.Warn("failed to record login time", zap.String("user_id", u.ID.Hex()), zap.Error(err))
	}
	h.audit.Auth(r, &brand.ID, &u.ID, event, details)
	jsonutil.OK(w, meResponse{User: u, Brand: brandPublic(brand)})
}

type registerInput struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone"`
}

// register creates a client in the request brand and signs them in.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	var in registerInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	acct := authutil.AccountInput{
		FullName:        normalize.Name(in.FullName),
		Email:           normalize.Email(in.Email),
		Phone:           normalize.Phone(in.Phone),
		Password:        in.Password,
		RequirePassword: true,
	}
	if errs := acct.Validate(); len(errs) > 0 {
		jsonutil.ValidationError(w, errs)
		return
	}

	hash, err := authutil.HashPassword(in.Password)
	if err != nil {
		h.errLog.Internal(w, r, "failed to hash password", err)
		return
	}
	brandID := brand.ID
	u, err := h.users.Create(r.Context(), models.User{
		BrandID:      &brandID,
		FullName:     acct.FullName,
		Email:        acct.Email,
		Phone:        acct.Phone,
		AuthMethod:   models.AuthPassword,
		PasswordHash: &hash,
		Role:         models.RoleClient,
	})
	if errors.Is(err, userstore.ErrDuplicateEmail) {
		jsonutil.Conflict(w, err.Error())
		return
	}
	if err != nil {
		h.errLog.Internal(w, r, "failed to create client", err)
		return
	}

	if err := h.sessionMgr.CreateSession(w, r, u.ID, brand.ID, u.Role); err != nil {
		h.errLog.Internal(w, r, "failed to create session", err)
		return
	}
	h.audit.Auth(r, &brand.ID, &u.ID, audit.EventRegistered, nil)
	if h.notifier != nil {
		h.notifier.Welcome(r.Context(), brand, u)
	}
	jsonutil.Created(w, meResponse{User: &u, Brand: brandPublic(brand)})
}

type ssoInput struct {
	Token    string `json:"token"`
	Provider string `json:"provider"`
}

// ssoLogin verifies a token against every configured backend and signs
// the matching client in, creating the account on first use.
func (h *Handler) ssoLogin(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	if !h.sso.Enabled() {
		jsonutil.NotFound(w, "sso is not configured")
		return
	}
	var in ssoInput
	if err := jsonutil.Decode(r, &in); err != nil {
		jsonutil.BadRequest(w, err.Error())
		return
	}

	id, err := h.sso.VerifyAny(r.Context(), in.Token, strings.TrimSpace(in.Provider))
	if errors.Is(err, sso.ErrUnknownBackend) {
		jsonutil.BadRequest(w, err.Error())
		return
	}
	if err != nil {
		h.audit.AuthFailed(r, &brand.ID, nil, audit.EventSSOFailed, "token rejected", map[string]string{"provider": in.Provider})
		jsonutil.Unauthorized(w, "sso token rejected")
		return
	}

	u, created, err := h.ssoUser(r, brand, id)
	if errors.Is(err, errNotClient) {
		h.audit.AuthFailed(r, &brand.ID, nil, audit.EventLoginFailedWrongRole, "sso for staff account", map[string]string{"provider": id.Provider})
		jsonutil.Forbidden(w, "this account cannot sign in here")
		return
	}
	if err != nil {
		h.errLog.Internal(w, r, "sso user lookup failed", err)
		return
	}
	if u.Status != models.StatusActive {
		h.audit.AuthFailed(r, &brand.ID, &u.ID, audit.EventLoginFailedUserDisabled, "user disabled", nil)
		jsonutil.Forbidden(w, "account is disabled")
		return
	}

	details := map[string]string{"provider": id.Provider}
	if created {
		details["created"] = "true"
		if h.notifier != nil {
			h.notifier.Welcome(r.Context(), brand, *u)
		}
	}
	h.signIn(w, r, brand, u, audit.EventSSOLogin, details)
}

var errNotClient = errors.New("sso identity belongs to a staff account")

// ssoUser finds the client by provider subject, then by email (linking
// the subject), and otherwise creates one.
func (h *Handler) ssoUser(r *http.Request, brand *tenant.Info, id sso.Identity) (*models.User, bool, error) {
	ctx := r.Context()
	u, err := h.users.GetBySSO(ctx, brand.ID, id.Provider, id.Subject)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, userstore.ErrNotFound) {
		return nil, false, err
	}

	email := normalize.Email(id.Email)
	if email != "" {
		u, err = h.users.GetByEmail(ctx, &brand.ID, email)
		if err == nil {
			if u.Role != models.RoleClient {
				return nil, false, errNotClient
			}
			if err := h.users.LinkSSO(ctx, u.ID, id.Provider, id.Subject); err != nil {
				return nil, false, err
			}
			return u, false, nil
		}
		if !errors.Is(err, userstore.ErrNotFound) {
			return nil, false, err
		}
	}
	if email == "" || !authutil.ValidEmail(email) {
		return nil, false, errors.New("sso identity has no usable email")
	}

	name := normalize.Name(id.Name)
	if name == "" {
		name = email[:strings.IndexByte(email, '@')]
	}
	brandID := brand.ID
	nu, err := h.users.Create(ctx, models.User{
		BrandID:     &brandID,
		FullName:    name,
		Email:       email,
		AuthMethod:  models.AuthSSO,
		SSOProvider: id.Provider,
		SSOSubject:  id.Subject,
		Role:        models.RoleClient,
	})
	if err != nil {
		return nil, false, err
	}
	return &nu, true, nil
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	brand := tenant.MustBrand(r)
	if u, ok := auth.CurrentUser(r); ok {
		uid := u.UserID()
		h.audit.Auth(r, &brand.ID, &uid, audit.EventLogout, nil)
	}
	h.sessionMgr.DestroySession(w, r)
	jsonutil.NoContent(w)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	su, _ := auth.CurrentUser(r)
	u, err := h.users.GetByID(r.Context(), su.UserID())
	if errors.Is(err, userstore.ErrNotFound) {
		jsonutil.Unauthorized(w, "sign in required")
		return
	}
	if err != nil {
		h.errLog.Internal(w, r, "failed to load user", err)
		return
	}
	jsonutil.OK(w, meResponse{User: u, Brand: brandPublic(tenant.MustBrand(r))})
}
