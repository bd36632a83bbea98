package storage

import (
	"strings"

	"github.com/ruteri/redact-client/interfaces"
)

// recordKey maps a data path to the flat key backends store it under.
func recordKey(path interfaces.DataPath) string {
	return strings.Trim(string(path), ".")
}
