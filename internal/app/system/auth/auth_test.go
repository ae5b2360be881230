package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const testKey = "this-is-a-32-character-long-key!"

func newTestManager(t *testing.T) *SessionManager {
	t.Helper()
	sm, err := NewSessionManager(testKey, "", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSessionManager() error = %v", err)
	}
	return sm
}

func TestNewSessionManager(t *testing.T) {
	tests := []struct {
		name       string
		sessionKey string
		secure     bool
		wantErr    bool
	}{
		{"valid key dev mode", testKey, false, false},
		{"valid key prod mode", testKey, true, false},
		{"empty key", "", false, true},
		{"weak key dev mode", "short", false, false},
		{"weak key prod mode", "short", true, true},
		{"default key prod mode", "dev-only-session-key-not-for-production", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm, err := NewSessionManager(tt.sessionKey, "test-session", "", time.Hour, tt.secure, zap.NewNop())
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewSessionManager() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && sm == nil {
				t.Error("NewSessionManager() returned nil")
			}
		})
	}
}

func TestSessionManager_SessionName(t *testing.T) {
	sm := newTestManager(t)
	if sm.SessionName() != "visadesk-session" {
		t.Errorf("SessionName() = %q, want %q", sm.SessionName(), "visadesk-session")
	}

	sm2, _ := NewSessionManager(testKey, "custom-session", "", time.Hour, false, zap.NewNop())
	if sm2.SessionName() != "custom-session" {
		t.Errorf("SessionName() = %q, want %q", sm2.SessionName(), "custom-session")
	}
}

func TestCurrentUser(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if u, ok := CurrentUser(req); ok || u != nil {
		t.Error("CurrentUser() should be empty for request without user")
	}

	want := &SessionUser{ID: primitive.NewObjectID().Hex(), Name: "Test User", Role: "admin"}
	u, ok := CurrentUser(WithTestUser(req, want))
	if !ok || u == nil {
		t.Fatal("CurrentUser() should return the injected user")
	}
	if u.ID != want.ID || u.Name != want.Name {
		t.Errorf("CurrentUser() = %+v, want %+v", u, want)
	}
}

func TestSessionUser_Helpers(t *testing.T) {
	oid := primitive.NewObjectID()
	if got := (&SessionUser{ID: oid.Hex()}).UserID(); got != oid {
		t.Errorf("UserID() = %v, want %v", got, oid)
	}
	if !(&SessionUser{ID: "invalid"}).UserID().IsZero() {
		t.Error("UserID() should be zero for invalid ID")
	}
	if !(&SessionUser{Role: "superadmin"}).IsSuperAdmin() {
		t.Error("IsSuperAdmin() = false for superadmin")
	}
	if (&SessionUser{Role: "client"}).IsStaff() {
		t.Error("IsStaff() = true for client")
	}
	if !(&SessionUser{Role: "agent"}).IsStaff() {
		t.Error("IsStaff() = false for agent")
	}
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireSignedIn(t *testing.T) {
	sm := newTestManager(t)
	var called bool
	protected := sm.RequireSignedIn(okHandler(&called))

	t.Run("unauthenticated", func(t *testing.T) {
		called = false
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user/account", nil))
		if called {
			t.Error("handler should not be called")
		}
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want 401", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
	})

	t.Run("authenticated", func(t *testing.T) {
		called = false
		req := WithTestUser(httptest.NewRequest(http.MethodGet, "/user/account", nil),
			&SessionUser{ID: primitive.NewObjectID().Hex(), Role: "client"})
		rec := httptest.NewRecorder()
		protected.ServeHTTP(rec, req)
		if !called || rec.Code != http.StatusOK {
			t.Errorf("called = %v, status = %d; want handler called with 200", called, rec.Code)
		}
	})
}

func TestRequireRole(t *testing.T) {
	sm := newTestManager(t)

	tests := []struct {
		name       string
		allowed    []string
		user       *SessionUser
		wantStatus int
	}{
		{"no user", []string{"admin"}, nil, http.StatusUnauthorized},
		{"correct role", []string{"admin"}, &SessionUser{Role: "admin"}, http.StatusOK},
		{"role case-insensitive", []string{"Admin"}, &SessionUser{Role: "ADMIN"}, http.StatusOK},
		{"wrong role", []string{"admin"}, &SessionUser{Role: "agent"}, http.StatusForbidden},
		{"one of many", []string{"admin", "manager"}, &SessionUser{Role: "manager"}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			req := httptest.NewRequest(http.MethodGet, "/admin/staff", nil)
			if tt.user != nil {
				req = WithTestUser(req, tt.user)
			}
			rec := httptest.NewRecorder()
			sm.RequireRole(tt.allowed...)(okHandler(&called)).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if called != (tt.wantStatus == http.StatusOK) {
				t.Errorf("called = %v for status %d", called, tt.wantStatus)
			}
		})
	}
}

func TestRequireStaff(t *testing.T) {
	sm := newTestManager(t)

	tests := []struct {
		role       string
		wantStatus int
	}{
		{"superadmin", http.StatusOK},
		{"admin", http.StatusOK},
		{"manager", http.StatusOK},
		{"agent", http.StatusOK},
		{"client", http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			var called bool
			req := WithTestUser(httptest.NewRequest(http.MethodGet, "/admin/cases", nil), &SessionUser{Role: tt.role})
			rec := httptest.NewRecorder()
			sm.RequireStaff(okHandler(&called)).ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

type fakeFetcher map[string]*SessionUser

func (f fakeFetcher) FetchUser(_ context.Context, userID string) *SessionUser {
	u, ok := f[userID]
	if !ok {
		return nil
	}
	cp := *u
	return &cp
}

// signIn creates a session on a recorder and returns its cookies.
func signIn(t *testing.T, sm *SessionManager, userID, brandID primitive.ObjectID, role string) []*http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/user/auth/login", nil)
	if err := sm.CreateSession(rec, req, userID, brandID, role); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("CreateSession() set no cookie")
	}
	return cookies
}

func TestLoadSessionUser(t *testing.T) {
	brandA := primitive.NewObjectID()
	brandB := primitive.NewObjectID()
	clientID := primitive.NewObjectID()
	superID := primitive.NewObjectID()

	sm := newTestManager(t)
	sm.SetUserFetcher(fakeFetcher{
		clientID.Hex(): {ID: clientID.Hex(), Role: "client", BrandID: brandA.Hex()},
		superID.Hex():  {ID: superID.Hex(), Role: "superadmin"},
	})

	tests := []struct {
		name         string
		userID       primitive.ObjectID
		sessionBrand primitive.ObjectID
		role         string
		requestBrand primitive.ObjectID
		wantUser     bool
	}{
		{"client in own brand", clientID, brandA, "client", brandA, true},
		{"client in other brand", clientID, brandA, "client", brandB, false},
		{"superadmin in any brand", superID, primitive.NilObjectID, "superadmin", brandB, true},
		{"deleted user", primitive.NewObjectID(), brandA, "client", brandA, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			requestBrand := tt.requestBrand.Hex()
			sm.SetBrandResolver(func(*http.Request) (string, bool) { return requestBrand, true })

			cookies := signIn(t, sm, tt.userID, tt.sessionBrand, tt.role)
			req := httptest.NewRequest(http.MethodGet, "/user/auth/me", nil)
			for _, c := range cookies {
				req.AddCookie(c)
			}

			var got *SessionUser
			h := sm.LoadSessionUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got, _ = CurrentUser(r)
			}))
			h.ServeHTTP(httptest.NewRecorder(), req)

			if (got != nil) != tt.wantUser {
				t.Fatalf("user present = %v, want %v", got != nil, tt.wantUser)
			}
			if got != nil && got.Token == "" {
				t.Error("session token not populated")
			}
		})
	}
}

func TestLoadSessionUser_NoCookie(t *testing.T) {
	sm := newTestManager(t)
	sm.SetUserFetcher(fakeFetcher{})

	var present bool
	h := sm.LoadSessionUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = CurrentUser(r)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if present {
		t.Error("anonymous request should not carry a user")
	}
}

func TestDestroySession(t *testing.T) {
	sm := newTestManager(t)
	cookies := signIn(t, sm, primitive.NewObjectID(), primitive.NewObjectID(), "client")

	req := httptest.NewRequest(http.MethodPost, "/user/auth/logout", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	sm.DestroySession(rec, req)

	var n int
	for _, c := range rec.Result().Cookies() {
		if c.Name != sm.SessionName() {
			continue
		}
		n++
		if c.MaxAge >= 0 {
			t.Errorf("cookie MaxAge = %d, want < 0", c.MaxAge)
		}
	}
	if n != 1 {
		t.Errorf("got %d session Set-Cookie headers, want 1", n)
	}
}

func TestIsDefaultKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"dev-only-session-key", true},
		{"please-change-me-now", true},
		{"my-password-is-long-enough-here!", true},
		{testKey, false},
		{"k3J9x2Lq8mZ4vB7nR1tY6wE0pA5sD3fG", false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := isDefaultKey(tt.key); got != tt.want {
				t.Errorf("isDefaultKey(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

// mockSecureCookieError implements securecookie.Error for testing.
type mockSecureCookieError struct {
	msg      string
	isDecode bool
}

func (e mockSecureCookieError) Error() string    { return e.msg }
func (e mockSecureCookieError) IsDecode() bool   { return e.isDecode }
func (e mockSecureCookieError) IsUsage() bool    { return false }
func (e mockSecureCookieError) IsInternal() bool { return false }
func (e mockSecureCookieError) Cause() error     { return nil }

func TestClassifySessionError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantType sessionErrorType
	}{
		{"nil", nil, sessionErrUnknown},
		{"expired", mockSecureCookieError{msg: "expired timestamp", isDecode: true}, sessionErrExpired},
		{"mac invalid", mockSecureCookieError{msg: "mac validation failed", isDecode: true}, sessionErrTampered},
		{"decrypt failed", mockSecureCookieError{msg: "decrypt error", isDecode: true}, sessionErrCorrupted},
		{"base64 error", mockSecureCookieError{msg: "base64 decode failed", isDecode: true}, sessionErrCorrupted},
		{"not a decode error", mockSecureCookieError{msg: "backend error"}, sessionErrBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got, _ := classifySessionError(tt.err); got != tt.wantType {
				t.Errorf("classifySessionError() type = %v, want %v", got, tt.wantType)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		header     string
		wantStatus int
	}{
		{"unconfigured passes", "", "", http.StatusOK},
		{"missing header", "s3cret", "", http.StatusUnauthorized},
		{"wrong scheme", "s3cret", "Basic s3cret", http.StatusUnauthorized},
		{"wrong token", "s3cret", "Bearer nope", http.StatusUnauthorized},
		{"valid", "s3cret", "Bearer s3cret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var called bool
			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			BearerToken(tt.token, zap.NewNop())(okHandler(&called)).ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}
