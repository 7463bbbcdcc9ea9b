package cmd

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	oauth "github.com/giantswarm/oauth2-provider"
	"github.com/giantswarm/oauth2-provider/host"
	"github.com/giantswarm/oauth2-provider/security"
)

// newRouter mounts the provider endpoints, the host login routes and the
// operational endpoints.
func newRouter(p *oauth.Provider, h *host.Host, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(security.RequestIDMiddleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	r.With(p.RequireAccessToken).Get("/protected", whoAmI)

	r.Mount("/", p.Handler(h.Routes()))
	return r
}

func metricsHandler(enabled bool) http.Handler {
	if !enabled {
		return nil
	}
	return promhttp.Handler()
}

type whoAmIResponse struct {
	UserID    string `json:"user_id"`
	ClientID  string `json:"client_id"`
	ExpiresAt int64  `json:"expires_at"`
}

// whoAmI is a sample protected resource reporting the token owner.
func whoAmI(w http.ResponseWriter, r *http.Request) {
	data, _ := oauth.TokenDataFromContext(r.Context())
	tok, err := host.ParseAccessToken(data)
	if err == nil {
		err = tok.Validate(time.Now())
	}
	if err != nil {
		desc := "access token is malformed"
		if errors.Is(err, host.ErrTokenExpired) {
			desc = "access token expired"
		}
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":             oauth.ErrorCodeInvalidToken,
			"error_description": desc,
		})
		return
	}

	writeJSON(w, http.StatusOK, whoAmIResponse{
		UserID:    tok.UserID,
		ClientID:  tok.ClientID,
		ExpiresAt: tok.ExpiresAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	security.SetNoStoreHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
