package security

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetClientIP(t *testing.T) {
	type headers struct{ xff, realIP string }

	tests := map[string]struct {
		remote string
		hdr    headers
		trust  bool
		hops   int
		want   string
	}{
		"peer address":                {remote: "192.168.1.100:12345", want: "192.168.1.100"},
		"ipv6 peer address":           {remote: "[::1]:12345", want: "::1"},
		"peer address without port":   {remote: "malformed", want: "malformed"},
		"untrusted forwarding header": {remote: "10.0.0.1:1", hdr: headers{xff: "203.0.113.1"}, want: "10.0.0.1"},
		"one proxy by default":        {remote: "10.0.0.1:1", hdr: headers{xff: "203.0.113.1, 10.0.0.2"}, trust: true, want: "203.0.113.1"},
		"two proxies": {
			remote: "10.0.0.1:1",
			hdr:    headers{xff: "198.51.100.7, 203.0.113.1, 10.0.0.2, 10.0.0.3"},
			trust:  true,
			hops:   2,
			want:   "203.0.113.1",
		},
		"fewer entries than proxies": {remote: "10.0.0.1:1", hdr: headers{xff: "203.0.113.1"}, trust: true, hops: 5, want: "203.0.113.1"},
		"unparsable forwarded entry": {remote: "10.0.0.1:1", hdr: headers{xff: "not-an-ip"}, trust: true, want: "10.0.0.1"},
		"real ip header":             {remote: "10.0.0.1:1", hdr: headers{realIP: "203.0.113.9"}, trust: true, want: "203.0.113.9"},
		"forwarded for before real ip": {
			remote: "10.0.0.1:1",
			hdr:    headers{xff: "203.0.113.1", realIP: "203.0.113.2"},
			trust:  true,
			want:   "203.0.113.1",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/oauth/access_token", nil)
			r.RemoteAddr = tc.remote
			if tc.hdr.xff != "" {
				r.Header.Set("X-Forwarded-For", tc.hdr.xff)
			}
			if tc.hdr.realIP != "" {
				r.Header.Set("X-Real-IP", tc.hdr.realIP)
			}

			if got := GetClientIP(r, tc.trust, tc.hops); got != tc.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tc.want)
			}
		})
	}
}
