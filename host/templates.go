package host

import (
	"bytes"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"

	oauth "github.com/giantswarm/oauth2-provider"
	"github.com/giantswarm/oauth2-provider/security"
)

type consentPage struct {
	ClientName string
	Action     string
	Field      string
}

type loginPage struct {
	Action string
	Next   string
	Error  string
}

const pageStyle = `body{font-family:system-ui,sans-serif;background:#f5f6f8;display:flex;justify-content:center;padding-top:10vh}
main{background:#fff;border-radius:8px;box-shadow:0 2px 8px rgba(0,0,0,.1);padding:2rem;max-width:24rem;width:100%}
button{padding:.5rem 1rem;margin-right:.5rem}input{display:block;width:100%;margin:.25rem 0 1rem;padding:.4rem}
.error{color:#b00020}`

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Authorize {{.ClientName}}</title><style>` + pageStyle + `</style></head>
<body><main>
<h1>Authorize access</h1>
<p><strong>{{.ClientName}}</strong> is requesting access to your account.</p>
<form method="post" action="{{.Action}}">
<button type="submit" name="{{.Field}}" value="true">Allow</button>
<button type="submit" name="deny" value="true">Deny</button>
</form>
</main></body>
</html>`))

var loginTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>Sign in</title><style>` + pageStyle + `</style></head>
<body><main>
<h1>Sign in</h1>
{{if .Error}}<p class="error">{{.Error}}</p>{{end}}
<form method="post" action="{{.Action}}">
<input type="hidden" name="next" value="{{.Next}}">
<label>Username<input name="username" autocomplete="username" required></label>
<label>Password<input name="password" type="password" autocomplete="current-password" required></label>
<button type="submit">Sign in</button>
</form>
</main></body>
</html>`))

// renderPage executes tmpl into a buffer first so a template error never
// leaves a half-written page.
func renderPage(w http.ResponseWriter, status int, tmpl *template.Template, data any, logger *slog.Logger) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		logger.Error("Failed to render page", "template", tmpl.Name(), "error", err)
		writeError(w, oauth.ServerError(""))
		return
	}

	security.SetNoStoreHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'; form-action 'self'")
	w.Header().Set("X-Frame-Options", "DENY")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// writeError writes an RFC 6749 JSON error.
func writeError(w http.ResponseWriter, err *oauth.OAuthError) {
	security.SetNoStoreHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: err.Code, ErrorDescription: err.Description})
}
