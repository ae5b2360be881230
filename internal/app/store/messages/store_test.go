package messagestore

import (
	"testing"
	"time"

	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/visadesk/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestListAfter(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	brand, caseID := primitive.NewObjectID(), primitive.NewObjectID()
	var ids []primitive.ObjectID
	for _, body := range []string{"one", "two", "three"} {
		m, err := s.Create(ctx, models.Message{BrandID: brand, CaseID: caseID, SenderRole: models.SideClient, Body: body})
		if err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		ids = append(ids, m.ID)
	}
	s.Create(ctx, models.Message{BrandID: brand, CaseID: primitive.NewObjectID(), Body: "elsewhere"})

	all, _ := s.List(ctx, brand, caseID, nil)
	if len(all) != 3 || all[0].Body != "one" || all[2].Body != "three" {
		t.Fatalf("List() = %+v", all)
	}
	newer, _ := s.List(ctx, brand, caseID, &ids[0])
	if len(newer) != 2 || newer[0].Body != "two" {
		t.Errorf("List(after) = %+v", newer)
	}
	none, _ := s.List(ctx, brand, caseID, &ids[2])
	if len(none) != 0 {
		t.Errorf("List(after last) = %d, want 0", len(none))
	}
	if other, _ := s.List(ctx, primitive.NewObjectID(), caseID, nil); len(other) != 0 {
		t.Errorf("List(other brand) = %d, want 0", len(other))
	}
}

func TestUnread(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	brand := primitive.NewObjectID()
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	s.Create(ctx, models.Message{BrandID: brand, CaseID: a, SenderRole: models.SideClient, Body: "hi"})
	s.Create(ctx, models.Message{BrandID: brand, CaseID: a, SenderRole: models.SideStaff, Body: "hello"})
	s.Create(ctx, models.Message{BrandID: brand, CaseID: b, SenderRole: models.SideClient, Body: "old"})

	read := time.Now().UTC().Add(time.Minute)
	cases := []models.Case{{ID: a}, {ID: b, StaffLastReadAt: &read}}

	got, err := s.Unread(ctx, brand, cases, models.SideStaff)
	if err != nil {
		t.Fatalf("Unread() error = %v", err)
	}
	if got[a] != 1 || got[b] != 0 {
		t.Errorf("Unread(staff) = %v, want a:1 and b absent", got)
	}

	client, _ := s.Unread(ctx, brand, []models.Case{{ID: a}}, models.SideClient)
	if client[a] != 1 {
		t.Errorf("Unread(client) = %v, want a:1", client)
	}
	if empty, _ := s.Unread(ctx, brand, nil, models.SideStaff); len(empty) != 0 {
		t.Errorf("Unread(no cases) = %v", empty)
	}
}
