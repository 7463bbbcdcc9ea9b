package host

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	oauth "github.com/giantswarm/oauth2-provider"
)

// sessionType marks session cookie payloads. The codec also seals access
// tokens and upstream state, so a payload without it is not a session.
const sessionType = "session"

type session struct {
	Type      string `json:"typ"`
	UserID    string `json:"uid"`
	ExpiresAt int64  `json:"exp"`
}

// sessionUser returns the user of a valid session cookie.
func (h *Host) sessionUser(r *http.Request) (string, bool) {
	c, err := r.Cookie(h.sessionCookie)
	if err != nil || c.Value == "" {
		return "", false
	}

	raw, err := h.codec.Decode(c.Value)
	if err != nil {
		h.logger.Debug("Ignoring undecodable session cookie", "error", err)
		return "", false
	}

	var s session
	if err := json.Unmarshal([]byte(raw), &s); err != nil || s.Type != sessionType || s.UserID == "" {
		return "", false
	}
	if !h.now().Before(time.Unix(s.ExpiresAt, 0)) {
		return "", false
	}
	return s.UserID, true
}

// startSession sets the session cookie for userID.
func (h *Host) startSession(w http.ResponseWriter, userID string) error {
	expires := h.now().Add(h.sessionTTL)
	raw, err := json.Marshal(session{Type: sessionType, UserID: userID, ExpiresAt: expires.Unix()})
	if err != nil {
		return err
	}
	value, err := h.codec.Encode(string(raw))
	if err != nil {
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

func (h *Host) endSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// Routes returns the login, logout and upstream callback handlers, to be
// mounted at the site root.
func (h *Host) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get(h.loginPath, h.serveLoginForm)
	r.Post(h.loginPath, h.serveLogin)
	r.Post("/logout", h.serveLogout)
	if h.upstream != nil {
		r.Get(h.upstream.callbackPath, h.serveUpstreamCallback)
	}
	return r
}

func (h *Host) serveLoginForm(w http.ResponseWriter, r *http.Request) {
	if h.authenticate == nil {
		http.NotFound(w, r)
		return
	}
	renderPage(w, http.StatusOK, loginTemplate, loginPage{
		Action: h.loginPath,
		Next:   safeNext(r.URL.Query().Get("next")),
	}, h.logger)
}

func (h *Host) serveLogin(w http.ResponseWriter, r *http.Request) {
	if h.authenticate == nil {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, oauth.NewOAuthError(oauth.ErrorCodeInvalidRequest, "malformed form", http.StatusBadRequest))
		return
	}

	next := safeNext(r.PostFormValue("next"))
	userID, err := h.authenticate(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	if errors.Is(err, ErrBadCredentials) {
		renderPage(w, http.StatusUnauthorized, loginTemplate, loginPage{
			Action: h.loginPath,
			Next:   next,
			Error:  "Invalid username or password.",
		}, h.logger)
		return
	}
	if err != nil {
		h.logger.Error("Login failed", "error", err)
		writeError(w, oauth.ServerError(""))
		return
	}

	if err := h.startSession(w, userID); err != nil {
		h.logger.Error("Failed to start session", "error", err)
		writeError(w, oauth.ServerError(""))
		return
	}
	http.Redirect(w, r, next, http.StatusSeeOther)
}

func (h *Host) serveLogout(w http.ResponseWriter, r *http.Request) {
	h.endSession(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// safeNext only allows local absolute paths, so login cannot be turned into
// an open redirect.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, "\\") {
		return "/"
	}
	return next
}
