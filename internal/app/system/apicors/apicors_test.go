package apicors

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name       string
		origins    []string
		method     string
		origin     string
		wantStatus int
		wantAllow  string
	}{
		{"any origin", nil, http.MethodGet, "https://site.test", http.StatusTeapot, "*"},
		{"preflight", nil, http.MethodOptions, "https://site.test", http.StatusNoContent, "*"},
		{"listed origin", []string{"https://a.test/"}, http.MethodGet, "https://a.test", http.StatusTeapot, "https://a.test"},
		{"unlisted origin", []string{"https://a.test"}, http.MethodGet, "https://b.test", http.StatusTeapot, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/common/countries", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			Middleware(tt.origins...)(ok).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantAllow {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantAllow)
			}
			if rec.Header().Get("Access-Control-Allow-Credentials") != "" {
				t.Error("credentials must never be allowed")
			}
		})
	}
}
