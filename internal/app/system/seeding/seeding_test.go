package seeding

import (
	"testing"

	brandstore "github.com/dalemusser/visadesk/internal/app/store/brands"
	catalogstore "github.com/dalemusser/visadesk/internal/app/store/catalog"
	countrystore "github.com/dalemusser/visadesk/internal/app/store/countries"
	userstore "github.com/dalemusser/visadesk/internal/app/store/users"
	"github.com/dalemusser/visadesk/internal/app/system/authutil"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"github.com/dalemusser/visadesk/internal/testutil"
	"go.uber.org/zap"
)

func TestCountries(t *testing.T) {
	list, err := Countries()
	if err != nil {
		t.Fatalf("Countries() error = %v", err)
	}
	if len(list) < 240 {
		t.Fatalf("Countries() = %d entries, want the full ISO list", len(list))
	}
	seen := map[string]bool{}
	for _, c := range list {
		if len(c.Code) != 2 || c.Name == "" {
			t.Errorf("bad entry %+v", c)
		}
		if seen[c.Code] {
			t.Errorf("duplicate code %s", c.Code)
		}
		seen[c.Code] = true
	}
	for _, code := range []string{"US", "IN", "GB", "BR"} {
		if !seen[code] {
			t.Errorf("missing %s", code)
		}
	}
}

func TestSeedAll(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	cfg := Config{
		DefaultBrandSlug:   "acme",
		PrimaryDomain:      "acme.example.com",
		SuperAdminEmail:    "root@example.com",
		SuperAdminPassword: "correct-horse-7",
	}

	// Twice: seeding must be idempotent.
	for i := 0; i < 2; i++ {
		if err := SeedAll(ctx, db, cfg, zap.NewNop()); err != nil {
			t.Fatalf("SeedAll() run %d error = %v", i+1, err)
		}
	}

	brands, err := brandstore.New(db).List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(brands) != 1 || brands[0].Slug != "acme" || brands[0].CasePrefix != "VD" {
		t.Fatalf("brands = %+v", brands)
	}

	catalog := catalogstore.New(db)
	levels, _ := catalog.ListLevels(ctx, brands[0].ID, false)
	if len(levels) != 3 {
		t.Errorf("levels = %d, want 3", len(levels))
	}
	days := map[string]int{}
	for _, l := range levels {
		days[l.Name] = l.ProcessingDays
	}
	if days["Standard"] != 10 || days["Expedited"] != 5 || days["Rush"] != 2 {
		t.Errorf("processing days = %v", days)
	}
	types, _ := catalog.ListTypes(ctx, brands[0].ID, false)
	if len(types) != 3 {
		t.Errorf("types = %d, want 3", len(types))
	}

	countries, _ := countrystore.New(db).List(ctx, false)
	if len(countries) < 240 {
		t.Errorf("countries = %d", len(countries))
	}

	u, err := userstore.New(db).GetSuperAdminByEmail(ctx, "root@example.com")
	if err != nil {
		t.Fatalf("superadmin not seeded: %v", err)
	}
	if u.BrandID != nil || u.Role != models.RoleSuperAdmin || !authutil.CheckPassword("correct-horse-7", *u.PasswordHash) {
		t.Errorf("superadmin = %+v", u)
	}
	if n, _ := userstore.New(db).CountSuperAdmins(ctx); n != 1 {
		t.Errorf("superadmins = %d, want 1", n)
	}
}

func TestSeedCatalog_LeavesExistingCatalogAlone(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	brand := testutil.InsertBrand(t, db, "acme")
	catalog := catalogstore.New(db)
	if _, err := catalog.CreateLevel(ctx, models.ServiceLevel{BrandID: brand.ID, Name: "Only", Slug: "only", ProcessingDays: 1, IsActive: true}); err != nil {
		t.Fatal(err)
	}

	if err := SeedCatalog(ctx, db, brand.ID, zap.NewNop()); err != nil {
		t.Fatalf("SeedCatalog() error = %v", err)
	}
	levels, _ := catalog.ListLevels(ctx, brand.ID, false)
	if len(levels) != 1 {
		t.Errorf("levels = %d, want the existing 1", len(levels))
	}
	types, _ := catalog.ListTypes(ctx, brand.ID, false)
	if len(types) != 3 {
		t.Errorf("types = %d, want 3 defaults", len(types))
	}
}

func TestSeedAll_RejectsWeakSuperAdminPassword(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx, cancel := testutil.TestContext()
	defer cancel()
	if err := SeedAll(ctx, db, Config{SuperAdminEmail: "root@example.com", SuperAdminPassword: "short"}, zap.NewNop()); err != nil {
		t.Fatalf("SeedAll() error = %v", err)
	}
	if n, _ := userstore.New(db).CountSuperAdmins(ctx); n != 0 {
		t.Errorf("superadmins = %d, want 0", n)
	}
}
