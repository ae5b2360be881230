package pairstore

import (
	"errors"
	"testing"

	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/visadesk/internal/testutil"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCheckOfferings(t *testing.T) {
	a, b := primitive.NewObjectID(), primitive.NewObjectID()
	ok := []models.Offering{{ServiceTypeID: a, ServiceLevelID: a}, {ServiceTypeID: a, ServiceLevelID: b}}
	if err := CheckOfferings(ok); err != nil {
		t.Errorf("CheckOfferings(distinct) = %v", err)
	}
	dup := append(ok, models.Offering{ServiceTypeID: a, ServiceLevelID: b, ServiceFee: 5})
	if err := CheckOfferings(dup); !errors.Is(err, ErrDuplicateOffering) {
		t.Errorf("CheckOfferings(dup) = %v", err)
	}
}

func TestStore_CreateRules(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	brand := primitive.NewObjectID()
	if _, err := s.Create(ctx, models.CountryPair{BrandID: brand, FromCode: "US", ToCode: "US"}); !errors.Is(err, ErrSameCountry) {
		t.Errorf("same country err = %v", err)
	}
	p, err := s.Create(ctx, models.CountryPair{BrandID: brand, FromCode: "US", ToCode: "BR", IsActive: true})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if p.Offerings == nil {
		t.Error("Offerings should default to an empty list")
	}
	if _, err := s.Create(ctx, models.CountryPair{BrandID: brand, FromCode: "US", ToCode: "BR"}); !errors.Is(err, ErrDuplicate) {
		t.Errorf("duplicate pair err = %v", err)
	}
	if _, err := s.Create(ctx, models.CountryPair{BrandID: brand, FromCode: "BR", ToCode: "US"}); err != nil {
		t.Errorf("reverse pair err = %v", err)
	}
}

func TestStore_FilterAndOfferings(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	brand := primitive.NewObjectID()
	usbr, _ := s.Create(ctx, models.CountryPair{BrandID: brand, FromCode: "US", ToCode: "BR", IsActive: true})
	s.Create(ctx, models.CountryPair{BrandID: brand, FromCode: "US", ToCode: "FR", IsActive: false})
	s.Create(ctx, models.CountryPair{BrandID: brand, FromCode: "GB", ToCode: "FR", IsActive: true})

	from, _ := s.ActiveFrom(ctx, brand, "US")
	if len(from) != 1 || from[0].ToCode != "BR" {
		t.Errorf("ActiveFrom(US) = %v", from)
	}
	all, _ := s.List(ctx, brand, Filter{To: "FR"})
	if len(all) != 2 {
		t.Errorf("List(to=FR) = %d, want 2", len(all))
	}

	typ, lvl := primitive.NewObjectID(), primitive.NewObjectID()
	got, err := s.SetOfferings(ctx, brand, usbr.ID, []models.Offering{{ServiceTypeID: typ, ServiceLevelID: lvl, GovernmentFee: 16000, ServiceFee: 9900, IsActive: true}})
	if err != nil {
		t.Fatalf("SetOfferings() error = %v", err)
	}
	o, ok := got.FindOffering(typ, lvl)
	if !ok || o.GovernmentFee != 16000 {
		t.Errorf("offering = %+v, %v", o, ok)
	}

	found, err := s.Find(ctx, brand, "US", "BR")
	if err != nil || len(found.Offerings) != 1 {
		t.Errorf("Find() = %+v, %v", found, err)
	}

	notes := "embassy closed Fridays"
	if p, err := s.Update(ctx, brand, usbr.ID, nil, &notes); err != nil || p.Notes != notes {
		t.Errorf("Update() = %+v, %v", p, err)
	}
	if err := s.Delete(ctx, brand, usbr.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, brand, usbr.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() err = %v", err)
	}
}
