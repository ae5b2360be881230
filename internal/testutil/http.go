package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dalemusser/visadesk/internal/app/system/auth"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// TestSessionKey signs cookies in handler tests.
const TestSessionKey = "visadesk-handler-tests-0123456789abcdef"

// SessionManager returns a cookie session manager for handler tests.
func SessionManager(t testing.TB) *auth.SessionManager {
	t.Helper()
	sm, err := auth.NewSessionManager(TestSessionKey, "visadesk-test", "", time.Hour, false, zap.NewNop())
	if err != nil {
		t.Fatalf("session manager: %v", err)
	}
	return sm
}

// TestUser represents user data for testing HTTP handlers.
type TestUser struct {
	ID      string
	Name    string
	Email   string
	Role    string
	BrandID string
}

// UserOf converts a stored user into a TestUser.
func UserOf(u models.User) TestUser {
	tu := TestUser{ID: u.ID.Hex(), Name: u.FullName, Email: u.Email, Role: u.Role}
	if u.BrandID != nil {
		tu.BrandID = u.BrandID.Hex()
	}
	return tu
}

// StaffUser returns a TestUser with the given staff role in brand.
func StaffUser(brand *tenant.Info, role string) TestUser {
	return TestUser{
		ID:      primitive.NewObjectID().Hex(),
		Name:    "Test " + role,
		Email:   role + "@test.com",
		Role:    role,
		BrandID: brand.ID.Hex(),
	}
}

// WithUser adds a user to the request context, bypassing the session middleware.
func WithUser(r *http.Request, user TestUser) *http.Request {
	return auth.WithTestUser(r, &auth.SessionUser{
		ID:      user.ID,
		Name:    user.Name,
		Email:   user.Email,
		Role:    user.Role,
		BrandID: user.BrandID,
	})
}

// NewJSONRequest builds a request whose body is body encoded as JSON.
// A string body is sent verbatim.
func NewJSONRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		rdr = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, target, rdr)
	if rdr != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// Request is a request prepared with a brand and, optionally, a user.
func Request(t *testing.T, method, target string, body any, brand *tenant.Info, user *TestUser) *http.Request {
	t.Helper()
	req := NewJSONRequest(t, method, target, body)
	if brand != nil {
		req = tenant.WithTestBrand(req, brand)
	}
	if user != nil {
		req = WithUser(req, *user)
	}
	return req
}

// WithURLParams sets chi URL parameters for handlers invoked directly.
func WithURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	return r.WithContext(contextWithRoute(r, rctx))
}

// ResponseRecorder wraps httptest.ResponseRecorder with helper methods.
type ResponseRecorder struct {
	*httptest.ResponseRecorder
}

// NewRecorder creates a new ResponseRecorder.
func NewRecorder() *ResponseRecorder {
	return &ResponseRecorder{httptest.NewRecorder()}
}

// AssertStatus checks the response status code.
func (r *ResponseRecorder) AssertStatus(t testing.TB, expected int) {
	t.Helper()
	if r.Code != expected {
		t.Errorf("status code: got %d, want %d (body: %s)", r.Code, expected, strings.TrimSpace(r.Body.String()))
	}
}

// DecodeJSON decodes the response body into v.
func (r *ResponseRecorder) DecodeJSON(t testing.TB, v any) {
	t.Helper()
	if err := json.Unmarshal(r.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response: %v (body: %s)", err, r.Body.String())
	}
}

// ErrorMessage returns the "error" field of a JSON error body.
func (r *ResponseRecorder) ErrorMessage(t testing.TB) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	r.DecodeJSON(t, &body)
	return body.Error
}

// AssertContains checks if the response body contains the expected string.
func (r *ResponseRecorder) AssertContains(t testing.TB, expected string) {
	t.Helper()
	if !strings.Contains(r.Body.String(), expected) {
		t.Errorf("response body does not contain %q: %s", expected, r.Body.String())
	}
}
