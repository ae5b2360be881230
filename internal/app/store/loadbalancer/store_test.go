package lbstore

import (
	"testing"

	"github.com/dalemusser/visadesk/internal/app/system/tenant"
	"github.com/dalemusser/visadesk/internal/app/system/weights"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/visadesk/internal/testutil"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

func agents(t *testing.T, db *mongo.Database, brand *tenant.Info, emails ...string) []primitive.ObjectID {
	t.Helper()
	out := make([]primitive.ObjectID, 0, len(emails))
	for _, e := range emails {
		out = append(out, testutil.InsertUser(t, db, brand, models.RoleAgent, e).ID)
	}
	return out
}

func TestStore_ReplaceAndAssign(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	brand := testutil.InsertBrand(t, db, "acme")
	ids := agents(t, db, brand, "a@acme.test", "b@acme.test", "c@acme.test")
	a, b, c := ids[0], ids[1], ids[2]
	if err := s.Replace(ctx, brand.ID, []weights.Entry{{ProcessorID: a, Weight: 50}, {ProcessorID: b, Weight: 30}, {ProcessorID: c, Weight: 20}}); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}

	counts := map[primitive.ObjectID]int{}
	for i := 0; i < 100; i++ {
		id, ok, err := s.Assign(ctx, brand.ID)
		if err != nil || !ok {
			t.Fatalf("Assign() = %v, %v, %v", id, ok, err)
		}
		counts[id]++
	}
	if counts[a] != 50 || counts[b] != 30 || counts[c] != 20 {
		t.Errorf("split = %d/%d/%d, want 50/30/20", counts[a], counts[b], counts[c])
	}

	list, _ := s.List(ctx, brand.ID)
	var total int64
	for _, e := range list {
		total += e.Assigned
	}
	if total != 100 {
		t.Errorf("stored assigned total = %d, want 100", total)
	}
}

func TestStore_ReplaceResetsAndRemoves(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	brand := testutil.InsertBrand(t, db, "acme")
	ids := agents(t, db, brand, "a@acme.test", "b@acme.test")
	a, b := ids[0], ids[1]
	s.Replace(ctx, brand.ID, []weights.Entry{{ProcessorID: a, Weight: 60}, {ProcessorID: b, Weight: 40}})
	s.Assign(ctx, brand.ID)
	s.Assign(ctx, brand.ID)

	if err := s.Replace(ctx, brand.ID, []weights.Entry{{ProcessorID: b, Weight: 100}}); err != nil {
		t.Fatal(err)
	}
	list, _ := s.List(ctx, brand.ID)
	if len(list) != 1 || list[0].ProcessorID != b || list[0].Assigned != 0 || list[0].Weight != 100 {
		t.Errorf("after Replace = %+v", list)
	}
	if has, _ := s.HasWeight(ctx, brand.ID, a); has {
		t.Error("removed processor still has a weight")
	}

	if err := s.Replace(ctx, brand.ID, nil); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.Assign(ctx, brand.ID); ok || err != nil {
		t.Errorf("Assign() with no weights = %v, %v, want disabled", ok, err)
	}
}

func TestStore_AssignSkipsZeroWeights(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	brand := testutil.InsertBrand(t, db, "acme")
	ids := agents(t, db, brand, "zero@acme.test", "full@acme.test")
	zero, full := ids[0], ids[1]
	s.Replace(ctx, brand.ID, []weights.Entry{{ProcessorID: zero, Weight: 0}, {ProcessorID: full, Weight: 100}})
	for i := 0; i < 10; i++ {
		id, ok, _ := s.Assign(ctx, brand.ID)
		if !ok || id != full {
			t.Fatalf("Assign() = %v, %v; zero weight must never win", id, ok)
		}
	}
}

func TestStore_AssignSkipsIneligibleProcessors(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	brand := testutil.InsertBrand(t, db, "acme")
	other := testutil.InsertBrand(t, db, "other")
	ids := agents(t, db, brand, "disabled@acme.test", "client@acme.test", "live@acme.test")
	disabled, client, live := ids[0], ids[1], ids[2]
	foreign := testutil.InsertUser(t, db, other, models.RoleAgent, "x@other.test").ID

	users := db.Collection("users")
	if _, err := users.UpdateByID(ctx, disabled, bson.M{"$set": bson.M{"status": models.StatusDisabled}}); err != nil {
		t.Fatal(err)
	}
	if _, err := users.UpdateByID(ctx, client, bson.M{"$set": bson.M{"role": models.RoleClient}}); err != nil {
		t.Fatal(err)
	}
	s.Replace(ctx, brand.ID, []weights.Entry{
		{ProcessorID: disabled, Weight: 40},
		{ProcessorID: client, Weight: 30},
		{ProcessorID: foreign, Weight: 20},
		{ProcessorID: live, Weight: 10},
	})

	for i := 0; i < 10; i++ {
		id, ok, err := s.Assign(ctx, brand.ID)
		if err != nil || !ok || id != live {
			t.Fatalf("Assign() = %v, %v, %v; want only the active agent", id, ok, err)
		}
	}

	if _, err := users.UpdateByID(ctx, live, bson.M{"$set": bson.M{"status": models.StatusDisabled}}); err != nil {
		t.Fatal(err)
	}
	if _, ok, err := s.Assign(ctx, brand.ID); ok || err != nil {
		t.Errorf("Assign() with no active processors = %v, %v, want unassigned", ok, err)
	}
}
