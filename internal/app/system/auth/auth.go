package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/normalize"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Session error classification for logging and monitoring.
type sessionErrorType int

const (
	sessionErrUnknown   sessionErrorType = iota
	sessionErrExpired                    // timestamp expired - normal
	sessionErrTampered                   // MAC invalid - potential attack
	sessionErrCorrupted                  // decode/decrypt failed - corruption or key rotation
	sessionErrBackend                    // store/backend failure
)

/*─────────────────────────────────────────────────────────────────────────────*
| Session constants                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

const (
	isAuthKey       = "is_authenticated"
	userIDKey       = "user_id"
	brandIDKey      = "brand_id"
	userRoleKey     = "user_role"
	sessionTokenKey = "session_token"
)

/*─────────────────────────────────────────────────────────────────────────────*
| SessionManager                                                              |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionManager owns the cookie store and the middleware that turns a
// session cookie into a SessionUser on the request context.
type SessionManager struct {
	store         *sessions.CookieStore
	logger        *zap.Logger
	name          string
	userFetcher   UserFetcher
	brandResolver BrandResolver
}

// BrandResolver reports the brand a request was routed to, as a hex id.
// ok is false when the request carries no brand.
type BrandResolver func(r *http.Request) (brandID string, ok bool)

// NewSessionManager creates a new SessionManager.
//
// Parameters:
//   - sessionKey: signing key for cookies (must be ≥32 chars in production)
//   - name: session cookie name (defaults to "visadesk-session" if empty)
//   - domain: cookie domain (empty means current host)
//   - maxAge: session cookie lifetime
//   - secure: if true, cookies are Secure
//   - logger: zap logger for session error logging
//
// Returns an error if sessionKey is empty or too weak for production mode.
func NewSessionManager(sessionKey, name, domain string, maxAge time.Duration, secure bool, logger *zap.Logger) (*SessionManager, error) {
	if sessionKey == "" {
		return nil, &SessionConfigError{Message: "session key is empty; provide ≥32 random chars"}
	}

	isWeak := len(sessionKey) < 32 || isDefaultKey(sessionKey)
	if secure && isWeak {
		return nil, &SessionConfigError{
			Message: "session key is too weak for production; provide ≥32 random chars (not the default dev key)",
		}
	}
	if isWeak {
		logger.Warn("session key is weak; 32+ random chars required in production",
			zap.Int("length", len(sessionKey)),
			zap.Bool("is_default", isDefaultKey(sessionKey)))
	}

	if name == "" {
		name = "visadesk-session"
	}

	store := sessions.NewCookieStore([]byte(sessionKey))
	store.Options = &sessions.Options{
		Domain:   domain,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	logger.Info("session manager initialized",
		zap.Bool("secure", secure),
		zap.String("name", name),
		zap.String("domain", domain))

	return &SessionManager{
		store:  store,
		logger: logger,
		name:   name,
	}, nil
}

// SessionConfigError is returned when session configuration is invalid.
type SessionConfigError struct {
	Message string
}

func (e *SessionConfigError) Error() string {
	return e.Message
}

// SessionName returns the configured session cookie name.
func (sm *SessionManager) SessionName() string {
	return sm.name
}

// GetSession retrieves the session for the request.
func (sm *SessionManager) GetSession(r *http.Request) (*sessions.Session, error) {
	return sm.store.Get(r, sm.name)
}

// SetUserFetcher sets the UserFetcher used by LoadSessionUser. It must be
// called after database initialization.
func (sm *SessionManager) SetUserFetcher(uf UserFetcher) {
	sm.userFetcher = uf
}

// SetBrandResolver makes LoadSessionUser drop sessions of brand users
// whose brand differs from the request brand.
func (sm *SessionManager) SetBrandResolver(br BrandResolver) {
	sm.brandResolver = br
}

/*─────────────────────────────────────────────────────────────────────────────*
| UserFetcher interface                                                       |
*─────────────────────────────────────────────────────────────────────────────*/

// UserFetcher fetches fresh user data from the database.
type UserFetcher interface {
	// FetchUser returns nil if the user is not found, disabled, or any
	// other condition that should invalidate the session.
	FetchUser(ctx context.Context, userID string) *SessionUser
}

/*─────────────────────────────────────────────────────────────────────────────*
| Current-User helper                                                        |
*─────────────────────────────────────────────────────────────────────────────*/

// SessionUser is the authenticated user in the request context, fetched
// fresh on each request so role changes and disabled accounts apply
// immediately.
type SessionUser struct {
	ID      string
	Name    string
	Email   string
	Role    string
	BrandID string // empty for superadmins
	Token   string
}

// UserID returns the user's ID as an ObjectID, or NilObjectID if invalid.
func (u *SessionUser) UserID() primitive.ObjectID {
	oid, err := primitive.ObjectIDFromHex(u.ID)
	if err != nil {
		return primitive.NilObjectID
	}
	return oid
}

// IsSuperAdmin reports whether the user may act across brands.
func (u *SessionUser) IsSuperAdmin() bool {
	return u.Role == models.RoleSuperAdmin
}

// IsStaff reports whether the user works in the back office.
func (u *SessionUser) IsStaff() bool {
	return models.IsStaffRole(u.Role)
}

type ctxKey string

const currentUserKey ctxKey = "currentUser"

// CurrentUser returns the user & "found?" flag from the request context.
func CurrentUser(r *http.Request) (*SessionUser, bool) {
	u, ok := r.Context().Value(currentUserKey).(*SessionUser)
	return u, ok
}

/*─────────────────────────────────────────────────────────────────────────────*
| Middleware                                                                  |
*─────────────────────────────────────────────────────────────────────────────*/

// LoadSessionUser injects the signed-in user into the context. Sessions
// whose user is gone, disabled, or bound to another brand are cleared.
func (sm *SessionManager) LoadSessionUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sm.store.Get(r, sm.name)
		if err != nil {
			sm.logSessionError(r, err)
		}

		isAuth, _ := sess.Values[isAuthKey].(bool)
		userID := getString(sess, userIDKey)
		if !isAuth || userID == "" || sm.userFetcher == nil {
			next.ServeHTTP(w, r)
			return
		}

		u := sm.userFetcher.FetchUser(r.Context(), userID)
		if u == nil {
			sm.logger.Info("session invalidated: user not found or disabled",
				zap.String("user_id", userID),
				zap.String("path", r.URL.Path))
			sm.clear(w, r, sess)
			next.ServeHTTP(w, r)
			return
		}

		if !u.IsSuperAdmin() && sm.brandResolver != nil {
			if brandID, ok := sm.brandResolver(r); ok && brandID != u.BrandID {
				sm.logger.Warn("session invalidated: brand mismatch",
					zap.String("user_id", userID),
					zap.String("user_brand", u.BrandID),
					zap.String("request_brand", brandID))
				sm.clear(w, r, sess)
				next.ServeHTTP(w, r)
				return
			}
		}

		u.Token = getString(sess, sessionTokenKey)
		next.ServeHTTP(w, withUser(r, u))
	})
}

func (sm *SessionManager) logSessionError(r *http.Request, err error) {
	errType, category := classifySessionError(err)
	switch errType {
	case sessionErrExpired:
		sm.logger.Debug("session expired, starting fresh session",
			zap.String("category", category),
			zap.String("path", r.URL.Path))
	case sessionErrTampered:
		sm.logger.Warn("session MAC validation failed (possible tampering)",
			zap.String("category", category),
			zap.String("path", r.URL.Path),
			zap.String("remote_addr", r.RemoteAddr),
			zap.String("user_agent", r.UserAgent()))
	case sessionErrCorrupted:
		sm.logger.Info("session decode failed, starting fresh session",
			zap.String("category", category),
			zap.String("path", r.URL.Path))
	default:
		sm.logger.Error("session store error, starting fresh session",
			zap.Error(err),
			zap.String("category", category),
			zap.String("path", r.URL.Path))
	}
}

func (sm *SessionManager) clear(w http.ResponseWriter, r *http.Request, sess *sessions.Session) {
	clearValues(sess)
	_ = sess.Save(r, w)
}

func clearValues(sess *sessions.Session) {
	sess.Values[isAuthKey] = false
	delete(sess.Values, userIDKey)
	delete(sess.Values, brandIDKey)
	delete(sess.Values, userRoleKey)
}

// RequireSignedIn answers 401 when no user is in context.
func (sm *SessionManager) RequireSignedIn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := CurrentUser(r); !ok {
			jsonutil.Unauthorized(w, "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole answers 401 when nobody is signed in and 403 when the
// user's role is not one of allowed.
func (sm *SessionManager) RequireRole(allowed ...string) func(http.Handler) http.Handler {
	set := make(map[string]struct{}, len(allowed))
	for _, role := range allowed {
		set[normalize.Role(role)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, ok := CurrentUser(r)
			if !ok {
				jsonutil.Unauthorized(w, "sign in required")
				return
			}
			if _, has := set[normalize.Role(u.Role)]; !has {
				jsonutil.Forbidden(w, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireStaff admits superadmins, admins, managers and agents.
func (sm *SessionManager) RequireStaff(next http.Handler) http.Handler {
	return sm.RequireRole(append(models.StaffRoles(), models.RoleSuperAdmin)...)(next)
}

// RequireManager admits superadmins, admins and managers.
func (sm *SessionManager) RequireManager(next http.Handler) http.Handler {
	return sm.RequireRole(models.RoleSuperAdmin, models.RoleAdmin, models.RoleManager)(next)
}

// RequireAdmin admits superadmins and brand admins.
func (sm *SessionManager) RequireAdmin(next http.Handler) http.Handler {
	return sm.RequireRole(models.RoleSuperAdmin, models.RoleAdmin)(next)
}

// RequireSuperAdmin admits superadmins only.
func (sm *SessionManager) RequireSuperAdmin(next http.Handler) http.Handler {
	return sm.RequireRole(models.RoleSuperAdmin)(next)
}

/*─────────────────────────────────────────────────────────────────────────────*
| Helpers                                                                     |
*─────────────────────────────────────────────────────────────────────────────*/

func withUser(r *http.Request, u *SessionUser) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), currentUserKey, u))
}

// WithTestUser injects a SessionUser into the request context for testing.
func WithTestUser(r *http.Request, u *SessionUser) *http.Request {
	return withUser(r, u)
}

func getString(s *sessions.Session, key string) string {
	if v, ok := s.Values[key].(string); ok {
		return v
	}
	return ""
}

// isDefaultKey checks if the session key appears to be a placeholder value.
func isDefaultKey(key string) bool {
	lower := strings.ToLower(key)
	for _, p := range []string{
		"dev-only",
		"change-me",
		"placeholder",
		"default",
		"example",
		"insecure",
		"test-key",
		"secret123",
		"password",
	} {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// classifySessionError categorizes a session/cookie error for logging.
func classifySessionError(err error) (sessionErrorType, string) {
	if err == nil {
		return sessionErrUnknown, "none"
	}

	scErr, ok := err.(securecookie.Error)
	if !ok || !scErr.IsDecode() {
		return sessionErrBackend, "backend"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "expired timestamp"):
		return sessionErrExpired, "expired"
	case strings.Contains(msg, "mac") || strings.Contains(msg, "hash"):
		return sessionErrTampered, "mac_invalid"
	case strings.Contains(msg, "decrypt"):
		return sessionErrCorrupted, "decrypt_failed"
	case strings.Contains(msg, "base64") || strings.Contains(msg, "decode"):
		return sessionErrCorrupted, "decode_failed"
	default:
		return sessionErrCorrupted, "decode_other"
	}
}

/*─────────────────────────────────────────────────────────────────────────────*
| Session lifecycle                                                           |
*─────────────────────────────────────────────────────────────────────────────*/

// CreateSession signs the user in. brandID is NilObjectID for superadmins.
func (sm *SessionManager) CreateSession(w http.ResponseWriter, r *http.Request, userID, brandID primitive.ObjectID, role string) error {
	sess, err := sm.store.Get(r, sm.name)
	if err != nil {
		sess, _ = sm.store.New(r, sm.name)
	}

	token, err := GenerateSessionToken()
	if err != nil {
		return err
	}

	sess.Values[isAuthKey] = true
	sess.Values[userIDKey] = userID.Hex()
	sess.Values[userRoleKey] = role
	sess.Values[sessionTokenKey] = token
	if brandID.IsZero() {
		delete(sess.Values, brandIDKey)
	} else {
		sess.Values[brandIDKey] = brandID.Hex()
	}

	return sess.Save(r, w)
}

// GenerateSessionToken generates a random URL-safe token.
func GenerateSessionToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// DestroySession terminates the user's session with a single expiring
// Set-Cookie. An unreadable cookie is expired too.
func (sm *SessionManager) DestroySession(w http.ResponseWriter, r *http.Request) {
	sess, _ := sm.store.Get(r, sm.name)
	if sess == nil {
		return
	}
	clearValues(sess)
	sess.Options.MaxAge = -1
	_ = sess.Save(r, w)
}
