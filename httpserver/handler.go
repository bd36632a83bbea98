package httpserver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/redact-client/interfaces"
	"github.com/ruteri/redact-client/metrics"
	"github.com/ruteri/redact-client/render"
)

const (
	// SessionCookieName carries the session id between the two phases.
	SessionCookieName = "sid"

	// MaxUploadSize bounds secure POST bodies, media included.
	MaxUploadSize = 16 << 20

	routeUnsecureGet = "unsecure_get"
	routeSecureGet   = "secure_get"
	routeSecurePost  = "secure_post"
	routeProxy       = "proxy"
)

// HandlerConfig tunes the two-phase protocol.
type HandlerConfig struct {
	// CookieMaxAge is the lifetime announced on the session cookie. It should
	// match the session store ttl.
	CookieMaxAge time.Duration

	// CookieSecure sets the Secure attribute on the session cookie.
	CookieSecure bool

	// SingleUseTokens rotates the session after every authorized request.
	SingleUseTokens bool
}

// Handler serves the data routes. Unsecure requests mint a session and
// render a page embedding the secure URL; secure requests must present the
// session cookie together with the token from that URL.
type Handler struct {
	sessions interfaces.SessionManager
	engine   interfaces.ResolutionEngine
	renderer interfaces.Renderer
	relayer  interfaces.Relayer
	metrics  *metrics.Collectors
	cfg      HandlerConfig
	log      *slog.Logger
}

// NewHandler creates a new HTTP request handler with the specified dependencies.
//
// Parameters:
//   - sessions: issues and verifies session tokens
//   - engine: resolves and stores values
//   - renderer: renders the unsecure and secure pages
//   - relayer: notifies relay URLs and serves the proxy route
//   - collectors: request metrics
//   - cfg: cookie and token policy
//   - log: Structured logger for operational insights
func NewHandler(
	sessions interfaces.SessionManager,
	engine interfaces.ResolutionEngine,
	renderer interfaces.Renderer,
	relayer interfaces.Relayer,
	collectors *metrics.Collectors,
	cfg HandlerConfig,
	log *slog.Logger,
) *Handler {
	return &Handler{
		sessions: sessions,
		engine:   engine,
		renderer: renderer,
		relayer:  relayer,
		metrics:  collectors,
		cfg:      cfg,
		log:      log,
	}
}

// RegisterRoutes mounts the data and proxy routes on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/data/{path}", h.HandleUnsecureGet)
	r.Get("/data/{path}/{token}", h.HandleSecureGet)
	r.Post("/data/{token}", h.HandleSecurePost)
	r.Post("/proxy", h.HandleProxy)
}

// HandleUnsecureGet mints a session for the requested path and renders the
// page hosting the secure iframe.
//
// URL format: GET /data/{path}?css=&edit=&data_type=&relay_url=&js_message=&js_height_msg_prefix=
//
// Response: HTML page; sets the "sid" cookie.
func (h *Handler) HandleUnsecureGet(w http.ResponseWriter, r *http.Request) {
	defer h.metrics.ObserveSince(routeUnsecureGet, time.Now())

	rc, err := ParseRequestContext(chi.URLParam(r, "path"), r.URL.Query())
	if err != nil {
		h.fail(w, r, routeUnsecureGet, err)
		return
	}

	sessionID, token, err := h.sessions.BeginSession(r.Context(), rc.Path)
	if err != nil {
		h.fail(w, r, routeUnsecureGet, err)
		return
	}
	h.metrics.SessionsStarted.Inc()

	values := render.UnsecureValues{
		Display:   rc.Display(),
		Path:      rc.Path,
		SecureURL: withQuery(fmt.Sprintf("/data/%s/%s", rc.Path, token), rc.Query()),
	}

	h.setSessionCookie(w, sessionID)
	h.writePage(w, r, routeUnsecureGet, render.TemplateUnsecure, values)
}

// HandleSecureGet renders the value at path for an authorized session.
// Absent values render as the zero value of the requested type.
//
// URL format: GET /data/{path}/{token}?<same query as the unsecure route>
//
// Response: HTML page, or a JSON error.
func (h *Handler) HandleSecureGet(w http.ResponseWriter, r *http.Request) {
	defer h.metrics.ObserveSince(routeSecureGet, time.Now())

	rc, err := ParseRequestContext(chi.URLParam(r, "path"), r.URL.Query())
	if err != nil {
		h.fail(w, r, routeSecureGet, err)
		return
	}

	sessionID, grant, err := h.authorize(r, chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, routeSecureGet, err)
		return
	}
	if grant.Path != rc.Path {
		h.fail(w, r, routeSecureGet, fmt.Errorf("%w: session minted for another path", interfaces.ErrDenied))
		return
	}

	token, err := h.nextToken(w, r, sessionID, chi.URLParam(r, "token"), grant.Path)
	if err != nil {
		h.fail(w, r, routeSecureGet, err)
		return
	}

	values, err := h.secureValues(r.Context(), rc, token)
	if err != nil {
		h.fail(w, r, routeSecureGet, err)
		return
	}

	h.writePage(w, r, routeSecureGet, render.TemplateSecure, values)
}

// HandleSecurePost stores a submitted value for an authorized session and
// renders the secure page with the persisted value.
//
// URL format: POST /data/{token}?<same query as the unsecure route>
//
// Request body: application/x-www-form-urlencoded {path, value, value_type},
// or multipart/form-data with the media file in "value".
//
// Response: HTML page, or a JSON error.
func (h *Handler) HandleSecurePost(w http.ResponseWriter, r *http.Request) {
	defer h.metrics.ObserveSince(routeSecurePost, time.Now())

	rc, err := ParseRequestContext("", r.URL.Query())
	if err != nil {
		h.fail(w, r, routeSecurePost, err)
		return
	}

	sessionID, grant, err := h.authorize(r, chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, routeSecurePost, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadSize)
	submitted, value, err := parseSubmission(r)
	if err != nil {
		h.fail(w, r, routeSecurePost, err)
		return
	}

	if submitted == "" {
		submitted = grant.Path
	}
	if submitted != grant.Path {
		h.fail(w, r, routeSecurePost, fmt.Errorf("%w: session minted for another path", interfaces.ErrDenied))
		return
	}
	rc.Path = grant.Path

	if rc.DataType != "" && rc.DataType != value.Type {
		h.fail(w, r, routeSecurePost, fmt.Errorf("%w: submitted %s for a %s field", interfaces.ErrInvalidDataType, value.Type, rc.DataType))
		return
	}

	if err := h.engine.SealAndStore(r.Context(), rc.Path, value); err != nil {
		h.metrics.Seals.WithLabelValues("error").Inc()
		h.fail(w, r, routeSecurePost, err)
		return
	}
	h.metrics.Seals.WithLabelValues("ok").Inc()

	if rc.RelayURL != "" {
		if err := h.relayer.Relay(r.Context(), rc.Path, rc.RelayURL); err != nil {
			h.metrics.Relays.WithLabelValues("error").Inc()
			h.fail(w, r, routeSecurePost, &RequestError{StatusCode: http.StatusBadGateway, Err: err})
			return
		}
		h.metrics.Relays.WithLabelValues("ok").Inc()
	}

	token, err := h.nextToken(w, r, sessionID, chi.URLParam(r, "token"), grant.Path)
	if err != nil {
		h.fail(w, r, routeSecurePost, err)
		return
	}

	if rc.DataType == "" {
		rc.DataType = value.Type
	}
	values, err := h.secureValues(r.Context(), rc, token)
	if err != nil {
		h.fail(w, r, routeSecurePost, err)
		return
	}

	h.writePage(w, r, routeSecurePost, render.TemplateSecure, values)
}

// authorize checks the session cookie against token. Denials are returned
// as errors wrapping ErrDenied.
func (h *Handler) authorize(r *http.Request, token string) (string, interfaces.Grant, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		h.metrics.Authorizations.WithLabelValues(interfaces.Denied.String()).Inc()
		return "", interfaces.Grant{}, fmt.Errorf("%w: missing session cookie", interfaces.ErrDenied)
	}

	grant, err := h.sessions.Authorize(r.Context(), cookie.Value, token)
	if err != nil {
		return "", interfaces.Grant{}, err
	}

	h.metrics.Authorizations.WithLabelValues(grant.Decision.String()).Inc()
	if grant.Decision != interfaces.Authorized {
		return "", interfaces.Grant{}, fmt.Errorf("%w: session not authorized", interfaces.ErrDenied)
	}
	return cookie.Value, grant, nil
}

// nextToken returns the token the rendered page should use. In single-use
// mode the session is replaced and a new cookie is set.
func (h *Handler) nextToken(w http.ResponseWriter, r *http.Request, sessionID, token string, path interfaces.DataPath) (string, error) {
	if !h.cfg.SingleUseTokens {
		return token, nil
	}

	newID, newToken, err := h.sessions.Rotate(r.Context(), sessionID, path)
	if err != nil {
		return "", err
	}
	h.setSessionCookie(w, newID)
	return newToken, nil
}

func (h *Handler) secureValues(ctx context.Context, rc RequestContext, token string) (render.SecureValues, error) {
	value, err := h.engine.Resolve(ctx, rc.Path, rc.DataType)
	empty := false
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		h.metrics.Resolutions.WithLabelValues("not_found").Inc()
		dataType := rc.DataType
		if dataType == "" {
			dataType = interfaces.TypeString
		}
		value = interfaces.ZeroValue(dataType)
		empty = true
	case err != nil:
		h.metrics.Resolutions.WithLabelValues("error").Inc()
		return render.SecureValues{}, err
	default:
		h.metrics.Resolutions.WithLabelValues("ok").Inc()
	}

	return render.SecureValues{
		Display:    rc.Display(),
		Path:       rc.Path,
		Token:      token,
		ActionURL:  withQuery("/data/"+token, rc.Query()),
		Value:      value,
		Empty:      empty,
		AcceptMIME: h.engine.AllowedMediaTypes(),
	}, nil
}

// parseSubmission reads the submitted path and value from a form or
// multipart body.
func parseSubmission(r *http.Request) (interfaces.DataPath, interfaces.Value, error) {
	contentType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	var (
		rawPath   string
		valueType string
		raw       []byte
		mimeType  string
		present   bool
	)

	switch contentType {
	case "multipart/form-data":
		if err := r.ParseMultipartForm(MaxUploadSize); err != nil {
			return "", interfaces.Value{}, badRequest(err)
		}
		rawPath = r.PostFormValue("path")
		valueType = r.PostFormValue("value_type")
		if valueType == "" {
			valueType = string(interfaces.TypeMedia)
		}

		file, header, err := r.FormFile("value")
		switch {
		case err == nil:
			defer file.Close()
			raw, err = io.ReadAll(file)
			if err != nil {
				return "", interfaces.Value{}, err
			}
			mimeType, _, _ = mime.ParseMediaType(header.Header.Get("Content-Type"))
			if mimeType == "" || mimeType == "application/octet-stream" {
				mimeType, _, _ = mime.ParseMediaType(http.DetectContentType(raw))
			}
			present = true
		case errors.Is(err, http.ErrMissingFile):
			if vs, ok := r.MultipartForm.Value["value"]; ok && len(vs) > 0 {
				raw = []byte(vs[0])
				present = true
			}
		default:
			return "", interfaces.Value{}, badRequest(err)
		}

	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return "", interfaces.Value{}, err
			}
			return "", interfaces.Value{}, badRequest(err)
		}
		rawPath = r.PostForm.Get("path")
		valueType = r.PostForm.Get("value_type")
		if vs, ok := r.PostForm["value"]; ok && len(vs) > 0 {
			raw = []byte(vs[0])
			present = true
		}

	default:
		return "", interfaces.Value{}, badRequest(fmt.Errorf("unsupported content type %q", contentType))
	}

	var path interfaces.DataPath
	if rawPath != "" {
		p, err := interfaces.NewDataPath(rawPath)
		if err != nil {
			return "", interfaces.Value{}, err
		}
		path = p
	}

	dataType, err := interfaces.ParseDataType(valueType)
	if err != nil {
		return "", interfaces.Value{}, err
	}
	if dataType == "" || dataType == interfaces.TypeKey {
		return "", interfaces.Value{}, fmt.Errorf("%w: value_type %q", interfaces.ErrInvalidDataType, valueType)
	}

	// an unchecked checkbox submits nothing
	if !present {
		if dataType != interfaces.TypeBool {
			return "", interfaces.Value{}, fmt.Errorf("%w: missing value", interfaces.ErrInvalidValue)
		}
		raw = []byte("false")
	}

	value, err := interfaces.ParseValue(dataType, raw, mimeType)
	if err != nil {
		return "", interfaces.Value{}, err
	}
	return path, value, nil
}

func badRequest(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return &RequestError{StatusCode: http.StatusBadRequest, Err: err}
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    sessionID,
		Path:     "/data",
		MaxAge:   int(h.cfg.CookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cfg.CookieSecure,
		SameSite: http.SameSiteNoneMode,
	})
}

// writePage renders into a buffer so that template failures still produce
// a clean error reply.
func (h *Handler) writePage(w http.ResponseWriter, r *http.Request, route, name string, values any) {
	var buf bytes.Buffer
	if err := h.renderer.Render(&buf, name, values); err != nil {
		h.fail(w, r, route, fmt.Errorf("render %s: %w", name, err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.log.Debug("Failed to write response", slog.String("route", route), "err", err)
	}
}
