package render

import (
	"encoding/base64"
	"html/template"
	"slices"
	"strings"

	"github.com/ruteri/redact-client/interfaces"
)

const (
	TemplateUnsecure = "unsecure"
	TemplateSecure   = "secure"
)

// Display carries the presentation options shared by both pages.
type Display struct {
	CSS               string
	Edit              bool
	DataType          interfaces.DataType
	RelayURL          string
	JSMessage         string
	JSHeightMsgPrefix string
}

// UnsecureValues feeds the unsecure page. SecureURL is the iframe target,
// including the token and the forwarded query.
type UnsecureValues struct {
	Display
	Path      interfaces.DataPath
	SecureURL string
}

// SecureValues feeds the secure page. ActionURL is the form target when
// editing.
type SecureValues struct {
	Display
	Path       interfaces.DataPath
	Token      string
	ActionURL  string
	Value      interfaces.Value
	Empty      bool
	AcceptMIME []string
}

// IsMedia reports whether the page shows or edits media.
func (v SecureValues) IsMedia() bool {
	return v.Value.Type == interfaces.TypeMedia || v.DataType == interfaces.TypeMedia
}

// InputType returns the HTML input type used to edit the value.
func (v SecureValues) InputType() string {
	switch v.Value.Type {
	case interfaces.TypeBool:
		return "checkbox"
	case interfaces.TypeU64, interfaces.TypeI64, interfaces.TypeF64:
		return "number"
	case interfaces.TypeMedia:
		return "file"
	default:
		return "text"
	}
}

// Accept returns the file picker filter for media inputs.
func (v SecureValues) Accept() string {
	return strings.Join(v.AcceptMIME, ",")
}

// MediaURI returns the media value as a data: URI. Only allow-listed image
// types are trusted as URLs.
func (v SecureValues) MediaURI() template.URL {
	if v.Value.Type != interfaces.TypeMedia || len(v.Value.Media.Data) == 0 {
		return ""
	}
	if !slices.Contains(v.AcceptMIME, v.Value.Media.MimeType) || !strings.HasPrefix(v.Value.Media.MimeType, "image/") {
		return ""
	}
	return template.URL("data:" + v.Value.Media.MimeType + ";base64," + base64.StdEncoding.EncodeToString(v.Value.Media.Data))
}
