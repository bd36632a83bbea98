package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

const maxProxyBodySize = 64 << 10

// ProxyRequest is the body of POST /proxy.
type ProxyRequest struct {
	HostURL string `json:"host_url"`
}

// HandleProxy fetches host_url on behalf of the embedding page when it lives
// under the same registrable domain as the request Origin.
//
// URL format: POST /proxy
// Required headers:
//   - Origin: origin of the embedding page
//
// Request body: JSON {"host_url": "..."}
//
// Response: the fetched body with its Content-Type.
func (h *Handler) HandleProxy(w http.ResponseWriter, r *http.Request) {
	defer h.metrics.ObserveSince(routeProxy, time.Now())

	origin := r.Header.Get("Origin")
	if origin == "" {
		h.fail(w, r, routeProxy, &RequestError{StatusCode: http.StatusBadRequest, Err: errors.New("missing Origin header")})
		return
	}

	var req ProxyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxProxyBodySize)).Decode(&req); err != nil {
		h.fail(w, r, routeProxy, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid proxy request: %w", err)})
		return
	}
	if err := validateHTTPURL(req.HostURL); err != nil {
		h.fail(w, r, routeProxy, &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf("invalid host_url: %w", err)})
		return
	}

	same, err := SameRegistrableDomain(origin, req.HostURL)
	if err != nil {
		h.fail(w, r, routeProxy, &RequestError{StatusCode: http.StatusBadRequest, Err: err})
		return
	}
	if !same {
		h.fail(w, r, routeProxy, &RequestError{StatusCode: http.StatusForbidden, Err: fmt.Errorf("origin %s may not proxy %s", origin, req.HostURL)})
		return
	}

	body, contentType, err := h.relayer.Get(r.Context(), req.HostURL)
	if err != nil {
		h.fail(w, r, routeProxy, &RequestError{StatusCode: http.StatusBadGateway, Err: err})
		return
	}

	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// SameRegistrableDomain reports whether two URLs share a registrable domain
// (public suffix plus one label). IP addresses and single-label hosts must
// match exactly.
func SameRegistrableDomain(a, b string) (bool, error) {
	da, err := registrableDomain(a)
	if err != nil {
		return false, err
	}
	db, err := registrableDomain(b)
	if err != nil {
		return false, err
	}
	return da == db, nil
}

func registrableDomain(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return "", fmt.Errorf("url %q has no host", raw)
	}
	if net.ParseIP(host) != nil {
		return host, nil
	}

	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host, nil
	}
	return domain, nil
}
