package cases

import (
	"net/http"
	"testing"

	errorsfeature "github.com/dalemusser/visadesk/internal/app/features/errors"
	"github.com/dalemusser/visadesk/internal/app/store/audit"
	"github.com/dalemusser/visadesk/internal/app/system/auditlog"
	"github.com/dalemusser/visadesk/internal/app/system/casenotify"
	"github.com/dalemusser/visadesk/internal/app/system/metrics"
	"github.com/dalemusser/visadesk/internal/app/system/paging"
	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/visadesk/internal/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type fixture struct {
	db      *mongo.Database
	h       *Handler
	brand   *tenant.Info
	manager testutil.TestUser
	agent   models.User
	client  models.User
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	logger := zap.NewNop()
	al := auditlog.New(audit.New(db), logger, auditlog.Config{Auth: "all", Admin: "all"})
	brand := testutil.InsertBrand(t, db, "acme")
	return fixture{
		db: db,
		h: NewHandler(db, testutil.NewMemStorage(), casenotify.New(db, nil, nil, "", logger),
			metrics.New(prometheus.NewRegistry()), errorsfeature.NewErrorLogger(logger), al, logger),
		brand:   brand,
		manager: testutil.StaffUser(brand, models.RoleManager),
		agent:   testutil.InsertUser(t, db, brand, models.RoleAgent, "agent@example.com"),
		client:  testutil.InsertUser(t, db, brand, models.RoleClient, "ann@example.com"),
	}
}

func (f fixture) do(t *testing.T, fn http.HandlerFunc, method, target string, body any, user testutil.TestUser, params ...string) *testutil.ResponseRecorder {
	t.Helper()
	req := testutil.Request(t, method, target, body, f.brand, &user)
	if len(params) > 0 {
		req = testutil.WithURLParams(req, params...)
	}
	rec := testutil.NewRecorder()
	fn(rec, req)
	return rec
}

func TestList_AgentSeesOwnCases(t *testing.T) {
	f := setup(t)
	agentID := f.agent.ID
	mine := testutil.InsertCase(t, f.db, f.brand, f.client, testutil.CaseOptions{AssignedTo: &agentID})
	testutil.InsertCase(t, f.db, f.brand, f.client, testutil.CaseOptions{})
	testutil.InsertCase(t, f.db, f.brand, f.client, testutil.CaseOptions{Status: models.CaseDraft})

	var page paging.Page[caseView]
	rec := f.do(t, f.h.list, http.MethodGet, "/", nil, f.manager)
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &page)
	if len(page.Items) != 2 {
		t.Errorf("manager sees %d cases, want 2 (drafts hidden)", len(page.Items))
	}

	rec = f.do(t, f.h.list, http.MethodGet, "/?assigned_to="+primitive.NewObjectID().Hex(), nil, testutil.UserOf(f.agent))
	rec.AssertStatus(t, http.StatusOK)
	rec.DecodeJSON(t, &page)
	if len(page.Items) != 1 || page.Items[0].ID != mine.ID {
		t.Fatalf("agent list = %+v, want only %s", page.Items, mine.ID.Hex())
	}
	if page.Items[0].AssigneeName != f.agent.FullName {
		t.Errorf("assignee name = %q, want %q", page.Items[0].AssigneeName, f.agent.FullName)
	}

	f.do(t, f.h.list, http.MethodGet, "/?status=draft", nil, f.manager).AssertStatus(t, http.StatusBadRequest)
	f.do(t, f.h.list, http.MethodGet, "/?cursor=nope", nil, f.manager).AssertStatus(t, http.StatusBadRequest)
}

func TestGet_AgentCannotSeeOthers(t *testing.T) {
	f := setup(t)
	c := testutil.InsertCase(t, f.db, f.brand, f.client, testutil.CaseOptions{})

	f.do(t, f.h.get, http.MethodGet, "/", nil, testutil.UserOf(f.agent), "id", c.ID.Hex()).AssertStatus(t, http.StatusNotFound)

	rec := f.do(t, f.h.get, http.MethodGet, "/", nil, f.manager, "id", c.ID.Hex())
	rec.AssertStatus(t, http.StatusOK)
	var v caseView
	rec.DecodeJSON(t, &v)
	if len(v.NextStatuses) != 2 || v.NextStatuses[0] != models.CaseInReview {
		t.Errorf("next statuses = %v, want [in_review cancelled]", v.NextStatuses)
	}
}

func TestSetStatus(t *testing.T) {
	f := setup(t)
	c := testutil.InsertCase(t, f.db, f.brand, f.client, testutil.CaseOptions{})
	id := c.ID.Hex()

	tests := []struct {
		name string
		body any
		want int
	}{
		{"skip review", map[string]string{"status": models.CaseProcessing}, http.StatusConflict},
		{"unknown status", map[string]string{"status": "lost"}, http.StatusBadRequest},
		{"pick up", map[string]string{"status": models.CaseInReview, "note": "looking now"}, http.StatusOK},
		{"ask for documents", map[string]string{"status": models.CaseDocumentsRequired}, http.StatusOK},
		{"back to review", map[string]string{"status": models.CaseInReview}, http.StatusOK},
		{"reject", map[string]string{"status": models.CaseRejected}, http.StatusOK},
		{"terminal", map[string]string{"status": models.CaseInReview}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.do(t, f.h.setStatus, http.MethodPost, "/", tt.body, f.manager, "id", id).AssertStatus(t, tt.want)
		})
	}

	ctx, cancel := testutil.TestContext()
	defer cancel()
	var stored models.Case
	if err := f.db.Collection("cases").FindOne(ctx, bson.M{"_id": c.ID}).Decode(&stored); err != nil {
		t.Fatalf("load case: %v", err)
	}
	if stored.Status != models.CaseRejected || stored.ClosedAt == nil {
		t.Errorf("case status = %s closed_at = %v, want rejected and closed", stored.Status, stored.ClosedAt)
	}
	if len(stored.StatusHistory) != 4 {
		t.Errorf("history entries = %d, want 4", len(stored.StatusHistory))
	}
	n, err := f.db.Collection("notifications").CountDocuments(ctx, bson.M{"user_id": f.client.ID, "kind": models.NotifyCaseStatus})
	if err != nil {
		t.Fatalf("count notifications: %v", err)
	}
	if n != 4 {
		t.Errorf("client notifications = %d, want 4", n)
	}
}

func TestAssign(t *testing.T) {
	f := setup(t)
	c := testutil.InsertCase(t, f.db, f.brand, f.client, testutil.CaseOptions{})

	f.do(t, f.h.assign, http.MethodPost, "/", map[string]string{"processor_id": f.client.ID.Hex()}, f.manager, "id", c.ID.Hex()).
		AssertStatus(t, http.StatusBadRequest)

	rec := f.do(t, f.h.assign, http.MethodPost, "/", map[string]string{"processor_id": f.agent.ID.Hex()}, f.manager, "id", c.ID.Hex())
	rec.AssertStatus(t, http.StatusOK)
	var v caseView
	rec.DecodeJSON(t, &v)
	if v.AssignedTo == nil || *v.AssignedTo != f.agent.ID {
		t.Errorf("assigned_to = %v, want %s", v.AssignedTo, f.agent.ID.Hex())
	}
	// The agent can now see the case.
	f.do(t, f.h.get, http.MethodGet, "/", nil, testutil.UserOf(f.agent), "id", c.ID.Hex()).AssertStatus(t, http.StatusOK)
}

func TestArchiveDeleteRestore(t *testing.T) {
	f := setup(t)
	c := testutil.InsertCase(t, f.db, f.brand, f.client, testutil.CaseOptions{})
	id := c.ID.Hex()

	f.do(t, f.h.archive, http.MethodPost, "/", nil, f.manager, "id", id).AssertStatus(t, http.StatusOK)
	var page paging.Page[caseView]
	rec := f.do(t, f.h.list, http.MethodGet, "/", nil, f.manager)
	rec.DecodeJSON(t, &page)
	if len(page.Items) != 0 {
		t.Errorf("archived case still in default list")
	}
	rec = f.do(t, f.h.list, http.MethodGet, "/?archived=true", nil, f.manager)
	rec.DecodeJSON(t, &page)
	if len(page.Items) != 1 {
		t.Errorf("archived list = %d, want 1", len(page.Items))
	}

	f.do(t, f.h.delete, http.MethodDelete, "/", nil, f.manager, "id", id).AssertStatus(t, http.StatusNoContent)
	f.do(t, f.h.setStatus, http.MethodPost, "/", map[string]string{"status": models.CaseInReview}, f.manager, "id", id).
		AssertStatus(t, http.StatusNotFound)
	rec = f.do(t, f.h.list, http.MethodGet, "/?deleted=true", nil, f.manager)
	rec.DecodeJSON(t, &page)
	if len(page.Items) != 1 {
		t.Errorf("deleted list = %d, want 1", len(page.Items))
	}

	f.do(t, f.h.restore, http.MethodPost, "/", nil, f.manager, "id", id).AssertStatus(t, http.StatusOK)
	f.do(t, f.h.setStatus, http.MethodPost, "/", map[string]string{"status": models.CaseInReview}, f.manager, "id", id).
		AssertStatus(t, http.StatusOK)
}

func TestPayment(t *testing.T) {
	f := setup(t)
	c := testutil.InsertCase(t, f.db, f.brand, f.client, testutil.CaseOptions{})

	f.do(t, f.h.payment, http.MethodPost, "/", map[string]string{"status": "maybe"}, f.manager, "id", c.ID.Hex()).
		AssertStatus(t, http.StatusBadRequest)

	rec := f.do(t, f.h.payment, http.MethodPost, "/", map[string]string{"status": "paid", "reference": "ch_123"}, f.manager, "id", c.ID.Hex())
	rec.AssertStatus(t, http.StatusOK)
	var v caseView
	rec.DecodeJSON(t, &v)
	if v.Payment.Status != models.PaymentPaid || v.Payment.Reference != "ch_123" || v.Payment.PaidAt == nil {
		t.Errorf("payment = %+v", v.Payment)
	}
}

func TestRoutes_RoleGating(t *testing.T) {
	f := setup(t)
	c := testutil.InsertCase(t, f.db, f.brand, f.client, testutil.CaseOptions{})
	agentID := f.agent.ID
	mine := testutil.InsertCase(t, f.db, f.brand, f.client, testutil.CaseOptions{AssignedTo: &agentID})
	router := Routes(f.h, testutil.SessionManager(t), nil)

	tests := []struct {
		name   string
		method string
		path   string
		user   *testutil.TestUser
		want   int
	}{
		{"anonymous", http.MethodGet, "/", nil, http.StatusUnauthorized},
		{"client", http.MethodGet, "/", ptr(testutil.UserOf(f.client)), http.StatusForbidden},
		{"agent lists", http.MethodGet, "/", ptr(testutil.UserOf(f.agent)), http.StatusOK},
		{"agent cannot archive", http.MethodPost, "/" + c.ID.Hex() + "/archive", ptr(testutil.UserOf(f.agent)), http.StatusForbidden},
		{"manager archives", http.MethodPost, "/" + c.ID.Hex() + "/archive", &f.manager, http.StatusOK},
		{"agent deletes own case", http.MethodDelete, "/" + mine.ID.Hex(), ptr(testutil.UserOf(f.agent)), http.StatusNoContent},
		{"agent restores own case", http.MethodPost, "/" + mine.ID.Hex() + "/restore", ptr(testutil.UserOf(f.agent)), http.StatusOK},
		{"agent cannot delete unseen case", http.MethodDelete, "/" + c.ID.Hex(), ptr(testutil.UserOf(f.agent)), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := testutil.Request(t, tt.method, tt.path, nil, f.brand, tt.user)
			rec := testutil.NewRecorder()
			router.ServeHTTP(rec, req)
			rec.AssertStatus(t, tt.want)
		})
	}
}

func ptr(u testutil.TestUser) *testutil.TestUser { return &u }
