package authapi

import (
	"net/http"
	"testing"
	"time"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	"github.com/dalemusser/visadesk/internal/app/store/audit"
	"github.com/dalemusser/visadesk/internal/app/store/ratelimit"
	"github.com/dalemusser/visadesk/internal/app/system/auditlog"
	"github.com/dalemusser/visadesk/internal/app/system/sso"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/visadesk/internal/testutil"
	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const partnerSecret = "partner-secret-for-tests"

func newHandler(t *testing.T, db *mongo.Database) *Handler {
	t.Helper()
	logger := zap.NewNop()
	al := auditlog.New(audit.New(db), logger, auditlog.Config{Auth: "all", Admin: "all"})
	limiter := ratelimit.New(db, 3, 15*time.Minute, 15*time.Minute)
	multi := sso.NewMulti(time.Second, logger, sso.NewJWT(partnerSecret, ""))
	return NewHandler(db, testutil.SessionManager(t), limiter, multi, nil,
		errorsfeature.NewErrorLogger(logger), al, logger)
}

func login(t *testing.T, h *Handler, brand *tenant.Info, staff bool, email, password string) *testutil.ResponseRecorder {
	t.Helper()
	req := testutil.Request(t, http.MethodPost, "/login", map[string]string{"email": email, "password": password}, brand, nil)
	rec := testutil.NewRecorder()
	if staff {
		h.staffLogin(rec, req)
	} else {
		h.clientLogin(rec, req)
	}
	return rec
}

func hasCookie(rec *testutil.ResponseRecorder) bool {
	for _, c := range rec.Result().Cookies() {
		if c.Name == "visadesk-test" && c.Value != "" {
			return true
		}
	}
	return false
}

func TestLogin_Client(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	brand := testutil.InsertBrand(t, db, "acme")
	testutil.InsertUser(t, db, brand, models.RoleClient, "ann@example.com")

	t.Run("success", func(t *testing.T) {
		rec := login(t, h, brand, false, "Ann@Example.com", testutil.DefaultPassword)
		rec.AssertStatus(t, http.StatusOK)
		var resp struct {
			User  models.User        `json:"user"`
			Brand models.PublicBrand `json:"brand"`
		}
		rec.DecodeJSON(t, &resp)
		if resp.User.Email != "ann@example.com" {
			t.Errorf("email = %q", resp.User.Email)
		}
		if resp.Brand.Slug != "acme" {
			t.Errorf("brand slug = %q", resp.Brand.Slug)
		}
		if !hasCookie(rec) {
			t.Error("expected a session cookie")
		}
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := login(t, h, brand, false, "ann@example.com", "nope-nope-1")
		rec.AssertStatus(t, http.StatusUnauthorized)
		if got := rec.ErrorMessage(t); got != msgBadCredentials {
			t.Errorf("error = %q", got)
		}
	})

	t.Run("unknown email has the same message", func(t *testing.T) {
		rec := login(t, h, brand, false, "ghost@example.com", "whatever-1")
		rec.AssertStatus(t, http.StatusUnauthorized)
		if got := rec.ErrorMessage(t); got != msgBadCredentials {
			t.Errorf("error = %q", got)
		}
	})

	t.Run("other brand does not match", func(t *testing.T) {
		other := testutil.InsertBrand(t, db, "other")
		rec := login(t, h, other, false, "ann@example.com", testutil.DefaultPassword)
		rec.AssertStatus(t, http.StatusUnauthorized)
	})

	t.Run("staff cannot use client login", func(t *testing.T) {
		testutil.InsertUser(t, db, brand, models.RoleAgent, "agent@example.com")
		rec := login(t, h, brand, false, "agent@example.com", testutil.DefaultPassword)
		rec.AssertStatus(t, http.StatusForbidden)
	})

	t.Run("missing fields", func(t *testing.T) {
		rec := login(t, h, brand, false, "", "")
		rec.AssertStatus(t, http.StatusBadRequest)
	})
}

func TestLogin_Staff(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	brand := testutil.InsertBrand(t, db, "acme")
	testutil.InsertUser(t, db, brand, models.RoleManager, "mgr@example.com")
	testutil.InsertUser(t, db, nil, models.RoleSuperAdmin, "root@example.com")
	testutil.InsertUser(t, db, brand, models.RoleClient, "client@example.com")

	tests := []struct {
		name  string
		email string
		want  int
	}{
		{"manager", "mgr@example.com", http.StatusOK},
		{"superadmin from any brand", "root@example.com", http.StatusOK},
		{"client rejected", "client@example.com", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := login(t, h, brand, true, tt.email, testutil.DefaultPassword)
			rec.AssertStatus(t, tt.want)
		})
	}
}

func TestLogin_Lockout(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	brand := testutil.InsertBrand(t, db, "acme")
	testutil.InsertUser(t, db, brand, models.RoleClient, "ann@example.com")

	login(t, h, brand, false, "ann@example.com", "bad-pass-1").AssertStatus(t, http.StatusUnauthorized)
	login(t, h, brand, false, "ann@example.com", "bad-pass-2").AssertStatus(t, http.StatusUnauthorized)

	rec := login(t, h, brand, false, "ann@example.com", "bad-pass-3")
	rec.AssertStatus(t, http.StatusTooManyRequests)
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected Retry-After header")
	}

	// Locked even with the right password.
	login(t, h, brand, false, "ann@example.com", testutil.DefaultPassword).AssertStatus(t, http.StatusTooManyRequests)

	ctx, cancel := testutil.TestContext()
	defer cancel()
	n, err := audit.New(db).Count(ctx, audit.QueryFilter{EventType: audit.EventLoginLockedOut})
	if err != nil {
		t.Fatalf("count audit: %v", err)
	}
	if n != 1 {
		t.Errorf("locked out events = %d, want 1", n)
	}
}

func TestLogin_DisabledUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	brand := testutil.InsertBrand(t, db, "acme")
	u := testutil.InsertUser(t, db, brand, models.RoleClient, "ann@example.com")

	ctx, cancel := testutil.TestContext()
	defer cancel()
	if _, err := db.Collection("users").UpdateByID(ctx, u.ID, bson.M{"$set": bson.M{"status": models.StatusDisabled}}); err != nil {
		t.Fatalf("disable: %v", err)
	}

	login(t, h, brand, false, "ann@example.com", testutil.DefaultPassword).AssertStatus(t, http.StatusForbidden)
}

func TestRegister(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	brand := testutil.InsertBrand(t, db, "acme")

	register := func(body map[string]string) *testutil.ResponseRecorder {
		req := testutil.Request(t, http.MethodPost, "/register", body, brand, nil)
		rec := testutil.NewRecorder()
		h.register(rec, req)
		return rec
	}

	rec := register(map[string]string{
		"full_name": "  Ann   Lee ",
		"email":     "ANN@example.com",
		"password":  "long-enough-9",
	})
	rec.AssertStatus(t, http.StatusCreated)
	var resp meResponse
	rec.DecodeJSON(t, &resp)
	if resp.User.FullName != "Ann Lee" || resp.User.Role != models.RoleClient {
		t.Errorf("user = %+v", resp.User)
	}
	if !hasCookie(rec) {
		t.Error("expected a session cookie")
	}

	t.Run("duplicate email", func(t *testing.T) {
		rec := register(map[string]string{"full_name": "Ann", "email": "ann@example.com", "password": "long-enough-9"})
		rec.AssertStatus(t, http.StatusConflict)
	})

	t.Run("validation", func(t *testing.T) {
		rec := register(map[string]string{"full_name": "", "email": "not-an-email", "password": "x"})
		rec.AssertStatus(t, http.StatusBadRequest)
	})

	t.Run("can sign in afterwards", func(t *testing.T) {
		login(t, h, brand, false, "ann@example.com", "long-enough-9").AssertStatus(t, http.StatusOK)
	})
}

func partnerToken(t *testing.T, sub, email string) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   sub,
		"email": email,
		"name":  "Partner User",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})
	s, err := tok.SignedString([]byte(partnerSecret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func TestSSOLogin(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	brand := testutil.InsertBrand(t, db, "acme")

	post := func(token, provider string) *testutil.ResponseRecorder {
		req := testutil.Request(t, http.MethodPost, "/sso", map[string]string{"token": token, "provider": provider}, brand, nil)
		rec := testutil.NewRecorder()
		h.ssoLogin(rec, req)
		return rec
	}

	t.Run("creates client on first use", func(t *testing.T) {
		rec := post(partnerToken(t, "p-1", "new@example.com"), "")
		rec.AssertStatus(t, http.StatusOK)
		var resp meResponse
		rec.DecodeJSON(t, &resp)
		if resp.User.AuthMethod != models.AuthSSO || resp.User.FullName != "Partner User" {
			t.Errorf("user = %+v", resp.User)
		}
	})

	t.Run("second sign-in finds the same user", func(t *testing.T) {
		rec := post(partnerToken(t, "p-1", "new@example.com"), sso.ProviderPartner)
		rec.AssertStatus(t, http.StatusOK)
		ctx, cancel := testutil.TestContext()
		defer cancel()
		n, err := db.Collection("users").CountDocuments(ctx, bson.M{"email": "new@example.com"})
		if err != nil || n != 1 {
			t.Errorf("users = %d, err = %v", n, err)
		}
	})

	t.Run("links an existing password account", func(t *testing.T) {
		testutil.InsertUser(t, db, brand, models.RoleClient, "old@example.com")
		post(partnerToken(t, "p-2", "old@example.com"), "").AssertStatus(t, http.StatusOK)
	})

	t.Run("staff account rejected", func(t *testing.T) {
		testutil.InsertUser(t, db, brand, models.RoleAgent, "agent@example.com")
		post(partnerToken(t, "p-3", "agent@example.com"), "").AssertStatus(t, http.StatusForbidden)
	})

	t.Run("bad token", func(t *testing.T) {
		post("garbage", "").AssertStatus(t, http.StatusUnauthorized)
	})

	t.Run("unknown provider", func(t *testing.T) {
		post(partnerToken(t, "p-1", "new@example.com"), "okta").AssertStatus(t, http.StatusBadRequest)
	})
}

func TestSSOLogin_NotConfigured(t *testing.T) {
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	h := NewHandler(db, testutil.SessionManager(t), nil, nil, nil, errorsfeature.NewErrorLogger(logger), nil, logger)
	brand := testutil.InsertBrand(t, db, "acme")

	req := testutil.Request(t, http.MethodPost, "/sso", map[string]string{"token": "x"}, brand, nil)
	rec := testutil.NewRecorder()
	h.ssoLogin(rec, req)
	rec.AssertStatus(t, http.StatusNotFound)
}

func TestMeAndLogout(t *testing.T) {
	db := testutil.SetupTestDB(t)
	h := newHandler(t, db)
	brand := testutil.InsertBrand(t, db, "acme")
	u := testutil.InsertUser(t, db, brand, models.RoleClient, "ann@example.com")
	tu := testutil.UserOf(u)

	req := testutil.Request(t, http.MethodGet, "/me", nil, brand, &tu)
	rec := testutil.NewRecorder()
	h.me(rec, req)
	rec.AssertStatus(t, http.StatusOK)
	rec.AssertContains(t, "ann@example.com")

	req = testutil.Request(t, http.MethodPost, "/logout", nil, brand, &tu)
	rec = testutil.NewRecorder()
	h.logout(rec, req)
	rec.AssertStatus(t, http.StatusNoContent)
}
