package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/giantswarm/oauth2-provider/security"
)

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeJSONError writes err as an RFC 6749 error body.
func writeJSONError(w http.ResponseWriter, err *OAuthError) {
	security.SetNoStoreHeaders(w)
	writeJSON(w, err.Status, errorBody{Error: err.Code, ErrorDescription: err.Description})
}

// seeOther redirects with 303 so the user agent follows with GET. The
// location is written as-is; http.Redirect would rewrite relative URIs.
func seeOther(w http.ResponseWriter, location string) {
	w.Header().Set("Location", location)
	w.WriteHeader(http.StatusSeeOther)
}

// respondError renders an engine error through the ErrorResponder when the
// extensions provide one.
func (p *Provider) respondError(w http.ResponseWriter, r *http.Request, err *OAuthError) {
	if r.Context().Err() != nil {
		return
	}
	if p.responder != nil {
		p.responder.RespondError(w, r, err)
		return
	}
	writeJSONError(w, err)
}

// handleExtensionError applies the extension error contract. It always
// produces at most one response.
func (p *Provider) handleExtensionError(w http.ResponseWriter, r *http.Request, extension string, err error) {
	switch {
	case errors.Is(err, ErrResponseWritten):
		return
	case r.Context().Err() != nil:
		p.logger.Debug("Request cancelled during extension call", "extension", extension, "error", err)
		return
	case errors.Is(err, ErrAccessDenied):
		p.ext.AccessDenied(w, r)
	default:
		if errors.Is(err, context.DeadlineExceeded) {
			p.logger.Warn("Extension timed out", "extension", extension, "timeout", p.config.ExtensionTimeout)
		} else {
			p.logger.Error("Extension failed", "extension", extension, "error", err)
		}
		p.respondError(w, r, ServerError(""))
	}
}
