package resolver

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/ruteri/redact-client/interfaces"
)

// validateMedia checks the declared MIME type against the allow-list and
// against the sniffed content type.
func (e *Engine) validateMedia(m interfaces.Media) error {
	if !slices.Contains(e.cfg.AllowedMediaTypes, m.MimeType) {
		return fmt.Errorf("%w: %q", interfaces.ErrUnsupportedMedia, m.MimeType)
	}
	if len(m.Data) == 0 {
		return fmt.Errorf("%w: empty media", interfaces.ErrInvalidValue)
	}
	if sniffed := http.DetectContentType(m.Data); sniffed != m.MimeType {
		return fmt.Errorf("%w: declared %q, content is %q", interfaces.ErrUnsupportedMedia, m.MimeType, sniffed)
	}
	return nil
}

// AllowedMediaTypes returns the configured MIME allow-list.
func (e *Engine) AllowedMediaTypes() []string {
	return slices.Clone(e.cfg.AllowedMediaTypes)
}
