// Package tenant resolves the brand a request belongs to.
package tenant

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/dalemusser/visadesk/internal/app/system/jsonutil"
	"github.com/dalemusser/visadesk/internal/app/system/timeouts"
	"github.com/dalemusser/visadesk/internal/domain/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type ctxKey string

const brandKey ctxKey = "brand"

// HeaderBrand names the brand slug override honored outside production.
const HeaderBrand = "X-Brand"

// ErrNotFound is what a Store returns when no brand matches.
var ErrNotFound = errors.New("brand not found")

// Info is the brand resolved for the current request.
type Info struct {
	ID           primitive.ObjectID
	Slug         string
	Name         string
	CasePrefix   string
	Currency     string
	SupportEmail string
}

// Store is the brand lookup the middleware needs.
type Store interface {
	GetBySlug(ctx context.Context, slug string) (models.Brand, error)
	GetByDomain(ctx context.Context, host string) (models.Brand, error)
	GetFirst(ctx context.Context) (models.Brand, error)
}

// Config controls how hosts map to brands.
type Config struct {
	PrimaryDomain    string // e.g. "visadesk.app"; required in multi-brand mode
	MultiBrand       bool
	DefaultBrandSlug string // single-brand mode; empty means the first brand
	AllowHeader      bool   // honor X-Brand (development only)
}

// Middleware resolves the request brand in this order:
//
//  1. X-Brand header, when AllowHeader is set
//  2. an exact match of the host against brand domains
//  3. in multi-brand mode, <slug>.<PrimaryDomain>; localhost falls back
//     to the default brand
//  4. in single-brand mode, DefaultBrandSlug or the first brand
//
// Unknown brands get 404 and disabled brands 403.
func Middleware(cfg Config, store Store, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeouts.Short())
			defer cancel()

			b, err := resolve(ctx, cfg, store, r)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					logger.Debug("brand not resolved",
						zap.String("host", r.Host),
						zap.String("path", r.URL.Path))
					jsonutil.NotFound(w, "unknown brand")
					return
				}
				logger.Error("brand lookup failed", zap.Error(err), zap.String("host", r.Host))
				jsonutil.InternalError(w, "brand lookup failed")
				return
			}

			if b.Status != models.StatusActive {
				logger.Info("request to disabled brand",
					zap.String("slug", b.Slug),
					zap.String("status", b.Status))
				jsonutil.Forbidden(w, "brand unavailable")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithBrand(r.Context(), InfoFrom(b))))
		})
	}
}

func resolve(ctx context.Context, cfg Config, store Store, r *http.Request) (models.Brand, error) {
	if cfg.AllowHeader {
		if slug := strings.TrimSpace(r.Header.Get(HeaderBrand)); slug != "" {
			return store.GetBySlug(ctx, strings.ToLower(slug))
		}
	}

	host := hostOnly(r.Host)
	b, err := store.GetByDomain(ctx, host)
	if err == nil || !errors.Is(err, ErrNotFound) {
		return b, err
	}

	if !cfg.MultiBrand {
		if cfg.DefaultBrandSlug != "" {
			return store.GetBySlug(ctx, cfg.DefaultBrandSlug)
		}
		return store.GetFirst(ctx)
	}

	if sub, ok := subdomain(host, cfg.PrimaryDomain); ok {
		return store.GetBySlug(ctx, sub)
	}
	if isLocal(host) {
		if cfg.DefaultBrandSlug != "" {
			return store.GetBySlug(ctx, cfg.DefaultBrandSlug)
		}
		return store.GetFirst(ctx)
	}
	return models.Brand{}, ErrNotFound
}

func hostOnly(hostport string) string {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

// subdomain returns "acme" for "acme.visadesk.app" under "visadesk.app".
// Nested subdomains are not brands.
func subdomain(host, primary string) (string, bool) {
	if primary == "" {
		return "", false
	}
	sub, found := strings.CutSuffix(host, "."+strings.ToLower(primary))
	if !found || sub == "" || strings.Contains(sub, ".") {
		return "", false
	}
	return sub, true
}

func isLocal(host string) bool {
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// InfoFrom copies the request-relevant fields of a brand.
func InfoFrom(b models.Brand) *Info {
	return &Info{
		ID:           b.ID,
		Slug:         b.Slug,
		Name:         b.Name,
		CasePrefix:   b.CasePrefix,
		Currency:     b.CurrencyOrDefault(),
		SupportEmail: b.SupportEmail,
	}
}

// WithBrand stores info on ctx.
func WithBrand(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, brandKey, info)
}

// FromContext returns the brand resolved for the request.
func FromContext(ctx context.Context) (*Info, bool) {
	info, ok := ctx.Value(brandKey).(*Info)
	return info, ok && info != nil
}

// MustBrand returns the request brand. Routes behind Middleware always
// have one; calling it elsewhere panics.
func MustBrand(r *http.Request) *Info {
	info, ok := FromContext(r.Context())
	if !ok {
		panic("tenant: no brand in request context")
	}
	return info
}

// BrandID is the hex id of the request brand, for auth.BrandResolver.
func BrandID(r *http.Request) (string, bool) {
	info, ok := FromContext(r.Context())
	if !ok {
		return "", false
	}
	return info.ID.Hex(), true
}

// RequireBrand rejects requests that reached it without a brand.
func RequireBrand(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := FromContext(r.Context()); !ok {
			jsonutil.NotFound(w, "unknown brand")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithTestBrand injects a brand into the request context for testing.
func WithTestBrand(r *http.Request, info *Info) *http.Request {
	return r.WithContext(WithBrand(r.Context(), info))
}
