package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/visadesk/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type catalog struct {
	brandID  primitive.ObjectID
	tourist  models.ServiceType
	business models.ServiceType
	standard models.ServiceLevel
	rush     models.ServiceLevel
	pair     models.CountryPair
}

func seed(t *testing.T, s *Service) catalog {
	t.Helper()
	ctx, cancel := testutil.TestContext()
	defer cancel()

	c := catalog{brandID: primitive.NewObjectID()}
	var err error
	mkType := func(name string, order int, active bool) models.ServiceType {
		st, err := s.catalog.CreateType(ctx, models.ServiceType{BrandID: c.brandID, Name: name, Slug: name, Kind: models.KindVisa, IsActive: active, SortOrder: order})
		if err != nil {
			t.Fatalf("CreateType: %v", err)
		}
		return st
	}
	mkLevel := func(name string, days, order int) models.ServiceLevel {
		l, err := s.catalog.CreateLevel(ctx, models.ServiceLevel{BrandID: c.brandID, Name: name, Slug: name, ProcessingDays: days, IsActive: true, SortOrder: order})
		if err != nil {
			t.Fatalf("CreateLevel: %v", err)
		}
		return l
	}
	c.tourist = mkType("tourist", 1, true)
	c.business = mkType("business", 2, false)
	c.standard = mkLevel("standard", 10, 1)
	c.rush = mkLevel("rush", 2, 2)

	c.pair, err = s.pairs.Create(ctx, models.CountryPair{
		BrandID:  c.brandID,
		FromCode: "US",
		ToCode:   "IN",
		IsActive: true,
		Offerings: []models.Offering{
			{ServiceTypeID: c.tourist.ID, ServiceLevelID: c.standard.ID, GovernmentFee: 8000, ServiceFee: 4900, IsActive: true},
			{ServiceTypeID: c.tourist.ID, ServiceLevelID: c.rush.ID, GovernmentFee: 8000, ServiceFee: 14900, IsActive: false},
			{ServiceTypeID: c.business.ID, ServiceLevelID: c.standard.ID, GovernmentFee: 16000, ServiceFee: 4900, IsActive: true},
		},
	})
	if err != nil {
		t.Fatalf("Create pair: %v", err)
	}
	return c
}

func TestQuote(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }
	c := seed(t, s)

	ctx, cancel := testutil.TestContext()
	defer cancel()

	res, err := s.Quote(ctx, c.brandID, "EUR", Request{From: "US", To: "IN", TypeID: c.tourist.ID, LevelID: c.standard.ID})
	if err != nil {
		t.Fatalf("Quote() error = %v", err)
	}
	want := models.Quote{GovernmentFee: 8000, ServiceFee: 4900, Total: 12900, Currency: "EUR", QuotedAt: fixed}
	if res.Quote != want {
		t.Errorf("Quote() = %+v, want %+v", res.Quote, want)
	}
	if res.Pair.ID != c.pair.ID || res.Level.ProcessingDays != 10 {
		t.Errorf("Quote() records = %+v / %+v", res.Pair, res.Level)
	}

	pid := c.pair.ID
	if _, err := s.Quote(ctx, c.brandID, "", Request{PairID: &pid, TypeID: c.tourist.ID, LevelID: c.standard.ID}); err != nil {
		t.Errorf("Quote() by pair id error = %v", err)
	}

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"inactive offering", Request{From: "US", To: "IN", TypeID: c.tourist.ID, LevelID: c.rush.ID}, models.ErrOfferingUnavailable},
		{"inactive type", Request{From: "US", To: "IN", TypeID: c.business.ID, LevelID: c.standard.ID}, models.ErrOfferingUnavailable},
		{"not offered", Request{From: "US", To: "IN", TypeID: primitive.NewObjectID(), LevelID: c.standard.ID}, models.ErrOfferingUnavailable},
		{"missing pair", Request{From: "IN", To: "US", TypeID: c.tourist.ID, LevelID: c.standard.ID}, ErrPairNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Quote(ctx, c.brandID, "USD", tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Quote() error = %v, want %v", err, tt.want)
			}
		})
	}

	inactive := false
	if _, err := s.pairs.Update(ctx, c.brandID, c.pair.ID, &inactive, nil); err != nil {
		t.Fatalf("Update pair: %v", err)
	}
	_, err = s.Quote(ctx, c.brandID, "USD", Request{From: "US", To: "IN", TypeID: c.tourist.ID, LevelID: c.standard.ID})
	if !errors.Is(err, models.ErrPairInactive) {
		t.Errorf("Quote() on inactive pair error = %v, want %v", err, models.ErrPairInactive)
	}
}

func TestOffers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)
	c := seed(t, s)

	ctx, cancel := testutil.TestContext()
	defer cancel()

	offers, err := s.Offers(ctx, c.brandID, "", "US", "IN")
	if err != nil {
		t.Fatalf("Offers() error = %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("Offers() = %d entries, want 1", len(offers))
	}
	o := offers[0]
	if o.ServiceType.ID != c.tourist.ID || o.ServiceLevel.ID != c.standard.ID || o.Total != 12900 || o.Currency != models.DefaultCurrency {
		t.Errorf("Offers()[0] = %+v", o)
	}

	if _, err := s.Offers(ctx, c.brandID, "", "US", "FR"); !errors.Is(err, ErrPairNotFound) {
		t.Errorf("Offers() unknown pair error = %v, want %v", err, ErrPairNotFound)
	}
}
