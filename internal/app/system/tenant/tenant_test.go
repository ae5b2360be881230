package tenant

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dalemusser/visadesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type fakeStore struct {
	brands []models.Brand
}

func (f fakeStore) GetBySlug(_ context.Context, slug string) (models.Brand, error) {
	for _, b := range f.brands {
		if b.Slug == slug {
			return b, nil
		}
	}
	return models.Brand{}, ErrNotFound
}

func (f fakeStore) GetByDomain(_ context.Context, host string) (models.Brand, error) {
	for _, b := range f.brands {
		for _, d := range b.Domains {
			if d == host {
				return b, nil
			}
		}
	}
	return models.Brand{}, ErrNotFound
}

func (f fakeStore) GetFirst(context.Context) (models.Brand, error) {
	if len(f.brands) == 0 {
		return models.Brand{}, ErrNotFound
	}
	return f.brands[0], nil
}

func testStore() fakeStore {
	return fakeStore{brands: []models.Brand{
		{ID: primitive.NewObjectID(), Slug: "acme", Name: "Acme Visas", Status: models.StatusActive, Domains: []string{"acmevisas.com"}},
		{ID: primitive.NewObjectID(), Slug: "globex", Name: "Globex", Status: models.StatusActive, Currency: "EUR"},
		{ID: primitive.NewObjectID(), Slug: "closed", Name: "Closed", Status: models.StatusDisabled},
	}}
}

func TestMiddleware(t *testing.T) {
	store := testStore()

	tests := []struct {
		name       string
		cfg        Config
		host       string
		header     string
		wantStatus int
		wantSlug   string
	}{
		{"custom domain", Config{MultiBrand: true, PrimaryDomain: "visadesk.app"}, "acmevisas.com", "", http.StatusOK, "acme"},
		{"custom domain with port", Config{MultiBrand: true, PrimaryDomain: "visadesk.app"}, "acmevisas.com:8080", "", http.StatusOK, "acme"},
		{"subdomain", Config{MultiBrand: true, PrimaryDomain: "visadesk.app"}, "globex.visadesk.app", "", http.StatusOK, "globex"},
		{"unknown subdomain", Config{MultiBrand: true, PrimaryDomain: "visadesk.app"}, "nope.visadesk.app", "", http.StatusNotFound, ""},
		{"nested subdomain", Config{MultiBrand: true, PrimaryDomain: "visadesk.app"}, "a.globex.visadesk.app", "", http.StatusNotFound, ""},
		{"foreign host", Config{MultiBrand: true, PrimaryDomain: "visadesk.app"}, "example.org", "", http.StatusNotFound, ""},
		{"localhost falls back", Config{MultiBrand: true, PrimaryDomain: "visadesk.app", DefaultBrandSlug: "globex"}, "localhost:8080", "", http.StatusOK, "globex"},
		{"disabled brand", Config{MultiBrand: true, PrimaryDomain: "visadesk.app"}, "closed.visadesk.app", "", http.StatusForbidden, ""},
		{"single brand default slug", Config{DefaultBrandSlug: "globex"}, "anything.test", "", http.StatusOK, "globex"},
		{"single brand first", Config{}, "anything.test", "", http.StatusOK, "acme"},
		{"header override", Config{AllowHeader: true}, "anything.test", "Globex", http.StatusOK, "globex"},
		{"header ignored in production", Config{}, "anything.test", "globex", http.StatusOK, "acme"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *Info
			h := Middleware(tt.cfg, store, zap.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = MustBrand(r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/common/brand", nil)
			req.Host = tt.host
			if tt.header != "" {
				req.Header.Set(HeaderBrand, tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantSlug != "" && (got == nil || got.Slug != tt.wantSlug) {
				t.Errorf("brand = %+v, want slug %q", got, tt.wantSlug)
			}
		})
	}
}

func TestInfoFrom_DefaultCurrency(t *testing.T) {
	info := InfoFrom(models.Brand{Slug: "acme"})
	if info.Currency != models.DefaultCurrency {
		t.Errorf("Currency = %q, want %q", info.Currency, models.DefaultCurrency)
	}
}

func TestRequireBrand(t *testing.T) {
	h := RequireBrand(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status without brand = %d, want 404", rec.Code)
	}

	rec = httptest.NewRecorder()
	req := WithTestBrand(httptest.NewRequest(http.MethodGet, "/", nil), &Info{Slug: "acme"})
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status with brand = %d, want 204", rec.Code)
	}

	if id, ok := BrandID(req); !ok || id == "" {
		t.Errorf("BrandID() = %q, %v", id, ok)
	}
}
