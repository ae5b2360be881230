package staff

import (
	"net/http"
	"testing"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	"github.com/dalemusser/visadesk/internal/app/store/audit"
	lbstore "github.com/dalemusser/visadesk/internal/app/store/loadbalancer"
	"github.com/dalemusser/visadesk/internal/app/system/auditlog"
	"github.com/dalemusser/visadesk/internal/app/system/casenotify"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/weights"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/visadesk/internal/testutil"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type fixture struct {
	db     *mongo.Database
	router http.Handler
	brand  *tenant.Info
	admin  models.User
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	al := auditlog.New(audit.New(db), logger, auditlog.Config{Auth: "all", Admin: "all"})
	h := NewHandler(db, casenotify.New(db, nil, nil, "", logger), errorsfeature.NewErrorLogger(logger), al, logger)
	brand := testutil.InsertBrand(t, db, "acme")
	return fixture{
		db:     db,
		router: Routes(h, testutil.SessionManager(t)),
		brand:  brand,
		admin:  testutil.InsertUser(t, db, brand, models.RoleAdmin, "admin@example.com"),
	}
}

func (f fixture) do(t *testing.T, method, target string, body any, user models.User) *testutil.ResponseRecorder {
	t.Helper()
	u := testutil.UserOf(user)
	req := testutil.Request(t, method, target, body, f.brand, &u)
	rec := testutil.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestCreate(t *testing.T) {
	f := setup(t)
	body := map[string]string{
		"full_name": "  Paula   Processor ", "email": "Paula@Example.com", "role": "agent", "password": "long-enough-pass-1",
	}

	rec := f.do(t, http.MethodPost, "/", body, f.admin)
	rec.AssertStatus(t, http.StatusCreated)
	var u models.User
	rec.DecodeJSON(t, &u)
	if u.FullName != "Paula Processor" || u.Email != "paula@example.com" || u.Role != models.RoleAgent {
		t.Errorf("created = %+v", u)
	}
	if u.BrandID == nil || *u.BrandID != f.brand.ID {
		t.Errorf("brand_id = %v, want %s", u.BrandID, f.brand.ID.Hex())
	}

	f.do(t, http.MethodPost, "/", body, f.admin).AssertStatus(t, http.StatusConflict)

	tests := []struct {
		name string
		body map[string]string
	}{
		{"client role", map[string]string{"full_name": "C", "email": "c@example.com", "role": "client", "password": "long-enough-pass-1"}},
		{"superadmin role", map[string]string{"full_name": "S", "email": "s@example.com", "role": "superadmin", "password": "long-enough-pass-1"}},
		{"bad email", map[string]string{"full_name": "E", "email": "nope", "role": "agent", "password": "long-enough-pass-1"}},
		{"weak password", map[string]string{"full_name": "W", "email": "w@example.com", "role": "agent", "password": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.do(t, http.MethodPost, "/", tt.body, f.admin).AssertStatus(t, http.StatusBadRequest)
		})
	}
}

func TestRoleGating(t *testing.T) {
	f := setup(t)
	manager := testutil.InsertUser(t, f.db, f.brand, models.RoleManager, "manager@example.com")
	agent := testutil.InsertUser(t, f.db, f.brand, models.RoleAgent, "agent@example.com")

	var list struct {
		Items []models.User `json:"items"`
	}
	rec := f.do(t, http.MethodGet, "/", nil, manager)
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &list)
	if len(list.Items) != 3 {
		t.Errorf("staff = %d, want 3", len(list.Items))
	}
	rec = f.do(t, http.MethodGet, "/?role=agent", nil, manager)
	rec.DecodeJSON(t, &list)
	if len(list.Items) != 1 || list.Items[0].ID != agent.ID {
		t.Errorf("agents = %+v", list.Items)
	}

	f.do(t, http.MethodGet, "/", nil, agent).AssertStatus(t, http.StatusForbidden)
	f.do(t, http.MethodDelete, "/"+agent.ID.Hex(), nil, manager).AssertStatus(t, http.StatusForbidden)
	f.do(t, http.MethodGet, "/?role=client", nil, manager).AssertStatus(t, http.StatusBadRequest)
}

func TestGuards(t *testing.T) {
	f := setup(t)
	agent := testutil.InsertUser(t, f.db, f.brand, models.RoleAgent, "agent@example.com")

	// Self and last-admin guards.
	f.do(t, http.MethodPatch, "/"+f.admin.ID.Hex(), map[string]string{"status": "disabled"}, f.admin).
		AssertStatus(t, http.StatusConflict)
	f.do(t, http.MethodPatch, "/"+f.admin.ID.Hex(), map[string]string{"role": "manager"}, f.admin).
		AssertStatus(t, http.StatusConflict)
	f.do(t, http.MethodDelete, "/"+f.admin.ID.Hex(), nil, f.admin).AssertStatus(t, http.StatusConflict)

	// With a second admin the first may step down.
	second := testutil.InsertUser(t, f.db, f.brand, models.RoleAdmin, "second@example.com")
	rec := f.do(t, http.MethodPatch, "/"+f.admin.ID.Hex(), map[string]string{"role": "manager"}, second)
	rec.AssertStatus(t, http.StatusOK)
	f.do(t, http.MethodPatch, "/"+second.ID.Hex(), map[string]string{"status": "disabled"}, second).
		AssertStatus(t, http.StatusConflict)

	// A weighted processor cannot be deleted.
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := lbstore.New(f.db).Replace(ctx, f.brand.ID, []weights.Entry{{ProcessorID: agent.ID, Weight: 100}}); err != nil {
		t.Fatalf("set weights: %v", err)
	}
	f.do(t, http.MethodDelete, "/"+agent.ID.Hex(), nil, second).AssertStatus(t, http.StatusConflict)
	// Nor disabled, though a role change within staff is fine.
	f.do(t, http.MethodPatch, "/"+agent.ID.Hex(), map[string]string{"status": "disabled"}, second).
		AssertStatus(t, http.StatusConflict)
	f.do(t, http.MethodPatch, "/"+agent.ID.Hex(), map[string]string{"role": "manager"}, second).
		AssertStatus(t, http.StatusOK)
	if err := lbstore.New(f.db).Replace(ctx, f.brand.ID, nil); err != nil {
		t.Fatalf("clear weights: %v", err)
	}
	f.do(t, http.MethodDelete, "/"+agent.ID.Hex(), nil, second).AssertStatus(t, http.StatusNoContent)
	f.do(t, http.MethodGet, "/"+agent.ID.Hex(), nil, second).AssertStatus(t, http.StatusNotFound)
}

func TestUpdate_ClientsAreNotStaff(t *testing.T) {
	f := setup(t)
	client := testutil.InsertUser(t, f.db, f.brand, models.RoleClient, "ann@example.com")
	f.do(t, http.MethodPatch, "/"+client.ID.Hex(), map[string]string{"role": "admin"}, f.admin).
		AssertStatus(t, http.StatusNotFound)
}

func TestRoles(t *testing.T) {
	f := setup(t)
	router := RolesRoutes(testutil.SessionManager(t))
	u := testutil.UserOf(f.admin)
	req := testutil.Request(t, http.MethodGet, "/", nil, f.brand, &u)
	rec := testutil.NewRecorder()
	router.ServeHTTP(rec, req)
	rec.AssertStatus(t, http.StatusOK)
	var resp struct {
		Roles     []models.RoleInfo `json:"roles"`
		Grantable []string          `json:"grantable"`
	}
	rec.DecodeJSON(t, &resp)
	if len(resp.Roles) != len(models.Roles) || len(resp.Grantable) != 3 {
		t.Errorf("roles = %+v", resp)
	}
}
