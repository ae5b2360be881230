// internal/app/system/seeding/seeding.go
package seeding

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"strings"

	brandstore "github.com/dalemusser/visadesk/internal/app/store/brands"
	catalogstore "github.com/dalemusser/visadesk/internal/app/store/catalog"
	countrystore "github.com/dalemusser/visadesk/internal/app/store/countries"
	userstore "github.com/dalemusser/visadesk/internal/app/store/users"
	"github.com/dalemusser/visadesk/internal/app/system/authutil"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

//go:embed seeddata/countries.json
var FS embed.FS

// Config controls what SeedAll creates beyond the fixed defaults.
type Config struct {
	DefaultBrandSlug   string // slug of the brand created on an empty database
	PrimaryDomain      string
	SuperAdminEmail    string // empty skips the superadmin
	SuperAdminPassword string
}

// SeedAll seeds default data if not already present. It is safe to run on
// every start.
func SeedAll(ctx context.Context, db *mongo.Database, cfg Config, logger *zap.Logger) error {
	if err := seedCountries(ctx, db, logger); err != nil {
		return err
	}
	if err := seedDefaultBrand(ctx, db, cfg, logger); err != nil {
		return err
	}

	brands, err := brandstore.New(db).List(ctx)
	if err != nil {
		return err
	}
	for _, b := range brands {
		if err := SeedCatalog(ctx, db, b.ID, logger); err != nil {
			return err
		}
	}
	return seedSuperAdmin(ctx, db, cfg, logger)
}

// Countries returns the embedded ISO 3166-1 list.
func Countries() ([]models.Country, error) {
	data, err := FS.ReadFile("seeddata/countries.json")
	if err != nil {
		return nil, err
	}
	var list []models.Country
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func seedCountries(ctx context.Context, db *mongo.Database, logger *zap.Logger) error {
	list, err := Countries()
	if err != nil {
		return err
	}
	n, err := countrystore.New(db).Seed(ctx, list)
	if err != nil {
		logger.Error("failed to seed countries", zap.Error(err))
		return err
	}
	if n > 0 {
		logger.Info("seeded countries", zap.Int64("added", n))
	}
	return nil
}

// seedDefaultBrand creates a brand when there is none, so a fresh install
// answers requests.
func seedDefaultBrand(ctx context.Context, db *mongo.Database, cfg Config, logger *zap.Logger) error {
	store := brandstore.New(db)
	n, err := store.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	slug := cfg.DefaultBrandSlug
	if slug == "" {
		slug = "visadesk"
	}
	var domains []string
	if cfg.PrimaryDomain != "" {
		domains = []string{cfg.PrimaryDomain}
	}
	b, err := store.Create(ctx, models.Brand{
		Slug:       slug,
		Name:       "VisaDesk",
		Domains:    domains,
		CasePrefix: "VD",
		Currency:   models.DefaultCurrency,
	})
	if err != nil {
		logger.Error("failed to seed default brand", zap.Error(err))
		return err
	}
	logger.Info("seeded default brand", zap.String("slug", b.Slug))
	return nil
}

var defaultLevels = []models.ServiceLevel{
	{Name: "Standard", Slug: "standard", ProcessingDays: 10, SortOrder: 1},
	{Name: "Expedited", Slug: "expedited", ProcessingDays: 5, SortOrder: 2},
	{Name: "Rush", Slug: "rush", ProcessingDays: 2, SortOrder: 3},
}

var defaultTypes = []models.ServiceType{
	{
		Name: "Tourist Visa", Slug: "tourist-visa", Kind: models.KindVisa, SortOrder: 1,
		RequiredDocuments: []string{"Passport scan", "Passport photo", "Travel itinerary"},
	},
	{
		Name: "Business Visa", Slug: "business-visa", Kind: models.KindVisa, SortOrder: 2,
		RequiredDocuments: []string{"Passport scan", "Passport photo", "Invitation letter"},
	},
	{
		Name: "Passport Renewal", Slug: "passport-renewal", Kind: models.KindPassport, SortOrder: 3,
		RequiredDocuments: []string{"Current passport", "Passport photo", "Application form"},
	},
}

// SeedCatalog gives a brand the default service levels and types when it
// has none of either.
func SeedCatalog(ctx context.Context, db *mongo.Database, brandID primitive.ObjectID, logger *zap.Logger) error {
	store := catalogstore.New(db)

	n, err := store.CountLevels(ctx, brandID)
	if err != nil {
		return err
	}
	if n == 0 {
		for _, l := range defaultLevels {
			l.BrandID = brandID
			l.IsActive = true
			if _, err := store.CreateLevel(ctx, l); err != nil {
				logger.Error("failed to seed service level", zap.String("slug", l.Slug), zap.Error(err))
				return err
			}
		}
		logger.Info("seeded service levels", zap.String("brand_id", brandID.Hex()))
	}

	n, err = store.CountTypes(ctx, brandID)
	if err != nil {
		return err
	}
	if n == 0 {
		for _, t := range defaultTypes {
			t.BrandID = brandID
			t.IsActive = true
			t.RequiredDocuments = append([]string(nil), t.RequiredDocuments...)
			if _, err := store.CreateType(ctx, t); err != nil {
				logger.Error("failed to seed service type", zap.String("slug", t.Slug), zap.Error(err))
				return err
			}
		}
		logger.Info("seeded service types", zap.String("brand_id", brandID.Hex()))
	}
	return nil
}

func seedSuperAdmin(ctx context.Context, db *mongo.Database, cfg Config, logger *zap.Logger) error {
	email := strings.TrimSpace(cfg.SuperAdminEmail)
	if email == "" {
		return nil
	}
	store := userstore.New(db)
	_, err := store.GetSuperAdminByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, userstore.ErrNotFound) {
		return err
	}
	if err := authutil.ValidatePassword(cfg.SuperAdminPassword); err != nil {
		logger.Warn("superadmin not seeded: password rejected", zap.String("email", email), zap.Error(err))
		return nil
	}
	hash, err := authutil.HashPassword(cfg.SuperAdminPassword)
	if err != nil {
		return err
	}
	u, err := store.Create(ctx, models.User{
		FullName:     "Super Admin",
		Email:        email,
		AuthMethod:   models.AuthPassword,
		PasswordHash: &hash,
		Role:         models.RoleSuperAdmin,
	})
	if err != nil {
		logger.Error("failed to seed superadmin", zap.Error(err))
		return err
	}
	logger.Info("seeded superadmin", zap.String("email", u.Email))
	return nil
}
