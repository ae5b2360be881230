// Package apicors provides CORS middleware for the public /common routes.
//
// Those routes carry no session cookie and change no state beyond quotes,
// so any origin may call them and credentials are never allowed.
package apicors

import (
	"net/http"
	"strings"
)

const (
	allowMethods = "GET, POST, OPTIONS"
	allowHeaders = "Content-Type, Accept, X-Brand"
	maxAge       = "86400"
)

// Middleware returns CORS middleware for anonymous endpoints. With no
// origins every origin is allowed (Access-Control-Allow-Origin: *);
// otherwise only the listed origins are echoed back.
//
// Usage in routes.go:
//
//	r.Route("/common", func(r chi.Router) {
//	    r.Use(apicors.Middleware())
//	    r.Mount("/", publiccatalog.Routes(h))
//	})
func Middleware(origins ...string) func(http.Handler) http.Handler {
	originSet := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o != "" {
			originSet[o] = struct{}{}
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if len(originSet) == 0 {
				h.Set("Access-Control-Allow-Origin", "*")
			} else if origin := r.Header.Get("Origin"); origin != "" {
				h.Add("Vary", "Origin")
				if _, ok := originSet[origin]; ok {
					h.Set("Access-Control-Allow-Origin", origin)
				}
			}
			h.Set("Access-Control-Allow-Methods", allowMethods)
			h.Set("Access-Control-Allow-Headers", allowHeaders)
			h.Set("Access-Control-Max-Age", maxAge)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
