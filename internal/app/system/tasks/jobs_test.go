package tasks_test

import (
	"testing"
	"time"

	"github.com/dalemusser/visadesk/internal/app/store/ratelimit"
	"github.com/dalemusser/visadesk/internal/app/system/tasks"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/visadesk/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStaleDraftCleanupJob(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	old := time.Now().UTC().Add(-60 * 24 * time.Hour)
	fresh := time.Now().UTC()
	brand := primitive.NewObjectID()
	docs := []any{
		models.Case{ID: primitive.NewObjectID(), BrandID: brand, Status: models.CaseDraft, UpdatedAt: old},
		models.Case{ID: primitive.NewObjectID(), BrandID: brand, Status: models.CaseDraft, UpdatedAt: fresh},
		models.Case{ID: primitive.NewObjectID(), BrandID: brand, Status: models.CaseSubmitted, UpdatedAt: old, Number: "VD-000001"},
	}
	if _, err := db.Collection("cases").InsertMany(ctx, docs); err != nil {
		t.Fatalf("insert cases: %v", err)
	}

	job := tasks.StaleDraftCleanupJob(db, zap.NewNop(), 30*24*time.Hour)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	n, err := db.Collection("cases").CountDocuments(ctx, bson.M{"is_deleted": true})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("deleted drafts = %d, want 1", n)
	}
}

func TestNotificationCleanupJob(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	longAgo := time.Now().UTC().Add(-90 * 24 * time.Hour)
	recent := time.Now().UTC()
	docs := []any{
		models.Notification{ID: primitive.NewObjectID(), ReadAt: &longAgo, CreatedAt: longAgo},
		models.Notification{ID: primitive.NewObjectID(), ReadAt: &recent, CreatedAt: longAgo},
		models.Notification{ID: primitive.NewObjectID(), CreatedAt: longAgo},
	}
	if _, err := db.Collection("notifications").InsertMany(ctx, docs); err != nil {
		t.Fatalf("insert notifications: %v", err)
	}

	job := tasks.NotificationCleanupJob(db, zap.NewNop(), 30*24*time.Hour)
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	n, _ := db.Collection("notifications").CountDocuments(ctx, bson.M{})
	if n != 2 {
		t.Errorf("remaining notifications = %d, want 2", n)
	}
}

func TestCounterAuditJob(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	good := testutil.InsertBrand(t, db, "good")
	bad := testutil.InsertBrand(t, db, "bad")
	g1 := testutil.InsertUser(t, db, good, models.RoleAgent, "g1@good.test")
	g2 := testutil.InsertUser(t, db, good, models.RoleManager, "g2@good.test")
	b1 := testutil.InsertUser(t, db, bad, models.RoleAgent, "b1@bad.test")
	docs := []any{
		models.ProcessorWeight{ID: primitive.NewObjectID(), BrandID: good.ID, ProcessorID: g1.ID, Weight: 60},
		models.ProcessorWeight{ID: primitive.NewObjectID(), BrandID: good.ID, ProcessorID: g2.ID, Weight: 40},
		models.ProcessorWeight{ID: primitive.NewObjectID(), BrandID: bad.ID, ProcessorID: b1.ID, Weight: 70},
	}
	if _, err := db.Collection("processor_weights").InsertMany(ctx, docs); err != nil {
		t.Fatalf("insert weights: %v", err)
	}

	core, logs := observer.New(zap.WarnLevel)
	job := tasks.CounterAuditJob(db, zap.New(core))
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("warnings = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["brand_id"]; got != bad.ID.Hex() {
		t.Errorf("brand_id = %v, want %s", got, bad.ID.Hex())
	}

	// A weighted processor who was disabled behind the balancer's back is reported.
	if _, err := db.Collection("users").UpdateOne(ctx, bson.M{"_id": g2.ID},
		bson.M{"$set": bson.M{"status": models.StatusDisabled}}); err != nil {
		t.Fatalf("disable user: %v", err)
	}
	core, logs = observer.New(zap.WarnLevel)
	job = tasks.CounterAuditJob(db, zap.New(core))
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	var flagged []any
	for _, e := range logs.FilterMessage("weighted processor is not an active staff member").All() {
		flagged = append(flagged, e.ContextMap()["processor_id"])
	}
	if len(flagged) != 1 || flagged[0] != g2.ID.Hex() {
		t.Errorf("flagged processors = %v, want [%s]", flagged, g2.ID.Hex())
	}
}

func TestRateLimitCleanupJob(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	store := ratelimit.New(db, 5, time.Minute, time.Minute)
	job := tasks.RateLimitCleanupJob(store, zap.NewNop())
	if job.Name != tasks.JobRateLimitCleanup || job.Interval != time.Hour {
		t.Errorf("job = %s every %v", job.Name, job.Interval)
	}
	if err := job.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}
