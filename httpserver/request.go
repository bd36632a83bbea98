package httpserver

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ruteri/redact-client/interfaces"
	"github.com/ruteri/redact-client/render"
)

// Query parameters understood by the data routes.
const (
	paramCSS               = "css"
	paramEdit              = "edit"
	paramDataType          = "data_type"
	paramRelayURL          = "relay_url"
	paramJSMessage         = "js_message"
	paramJSHeightMsgPrefix = "js_height_msg_prefix"
)

// RequestContext holds the validated per-request options. It is built from
// the query string and never persisted.
type RequestContext struct {
	Path     interfaces.DataPath
	DataType interfaces.DataType
	Edit     bool
	CSS      string
	RelayURL string

	// JSMessage and JSHeightMsgPrefix are kept in their base64 form for
	// forwarding and decoded for the templates.
	JSMessage         string
	JSHeightMsgPrefix string
}

// ParseRequestContext validates the query of a data route.
func ParseRequestContext(path string, query url.Values) (RequestContext, error) {
	rc := RequestContext{}

	if path != "" {
		p, err := interfaces.NewDataPath(path)
		if err != nil {
			return rc, err
		}
		rc.Path = p
	}

	if raw := query.Get(paramDataType); raw != "" {
		dt, err := interfaces.ParseDataType(raw)
		if err != nil {
			return rc, err
		}
		if dt == interfaces.TypeKey {
			return rc, fmt.Errorf("%w: %q is not a user type", interfaces.ErrInvalidDataType, raw)
		}
		rc.DataType = dt
	}

	if raw := query.Get(paramEdit); raw != "" {
		edit, err := strconv.ParseBool(raw)
		if err != nil {
			return rc, fmt.Errorf("%w: edit must be a bool", interfaces.ErrInvalidValue)
		}
		rc.Edit = edit
	}

	for _, p := range []struct {
		name string
		dst  *string
	}{
		{paramCSS, &rc.CSS},
		{paramRelayURL, &rc.RelayURL},
	} {
		raw := query.Get(p.name)
		if raw == "" {
			continue
		}
		if err := validateHTTPURL(raw); err != nil {
			return rc, fmt.Errorf("%w: %s: %v", interfaces.ErrInvalidValue, p.name, err)
		}
		*p.dst = raw
	}

	for _, p := range []struct {
		name string
		dst  *string
	}{
		{paramJSMessage, &rc.JSMessage},
		{paramJSHeightMsgPrefix, &rc.JSHeightMsgPrefix},
	} {
		raw := query.Get(p.name)
		if raw == "" {
			continue
		}
		if _, err := base64.StdEncoding.DecodeString(raw); err != nil {
			return rc, fmt.Errorf("%w: %s must be base64", interfaces.ErrInvalidValue, p.name)
		}
		*p.dst = raw
	}

	return rc, nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

// Query re-encodes the options for the next hop of the protocol.
func (rc RequestContext) Query() url.Values {
	q := url.Values{}
	if rc.CSS != "" {
		q.Set(paramCSS, rc.CSS)
	}
	if rc.Edit {
		q.Set(paramEdit, "true")
	}
	if rc.DataType != "" {
		q.Set(paramDataType, string(rc.DataType))
	}
	if rc.RelayURL != "" {
		q.Set(paramRelayURL, rc.RelayURL)
	}
	if rc.JSMessage != "" {
		q.Set(paramJSMessage, rc.JSMessage)
	}
	if rc.JSHeightMsgPrefix != "" {
		q.Set(paramJSHeightMsgPrefix, rc.JSHeightMsgPrefix)
	}
	return q
}

// Display returns the template options with script messages decoded.
func (rc RequestContext) Display() render.Display {
	return render.Display{
		CSS:               rc.CSS,
		Edit:              rc.Edit,
		DataType:          rc.DataType,
		RelayURL:          rc.RelayURL,
		JSMessage:         decodeBase64(rc.JSMessage),
		JSHeightMsgPrefix: decodeBase64(rc.JSHeightMsgPrefix),
	}
}

func decodeBase64(s string) string {
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return ""
	}
	return string(decoded)
}

func withQuery(path string, q url.Values) string {
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}
