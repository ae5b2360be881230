package network

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		xRealIP    string
		remoteAddr string
		want       string
	}{
		{name: "forwarded single", xff: "192.168.1.1", remoteAddr: "10.0.0.1:12345", want: "192.168.1.1"},
		{name: "forwarded chain", xff: "192.168.1.1, 10.0.0.2", remoteAddr: "10.0.0.1:12345", want: "192.168.1.1"},
		{name: "forwarded padded", xff: "  192.168.1.1  ", remoteAddr: "10.0.0.1:1", want: "192.168.1.1"},
		{name: "real ip", xRealIP: "172.16.0.9", remoteAddr: "10.0.0.1:1", want: "172.16.0.9"},
		{name: "remote addr", remoteAddr: "10.0.0.1:12345", want: "10.0.0.1"},
		{name: "ipv6 remote addr", remoteAddr: "[2001:db8::1]:443", want: "2001:db8::1"},
		{name: "no port", remoteAddr: "10.0.0.1", want: "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xRealIP != "" {
				r.Header.Set("X-Real-IP", tt.xRealIP)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
