package kms

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/redact-client/cryptoutils"
	"github.com/ruteri/redact-client/interfaces"
)

// DefaultKeyPath is where the key used to seal page-submitted values lives
// unless configured otherwise.
const DefaultKeyPath interfaces.DataPath = ".keys.encryption.default."

// BootstrapDefaultKey ensures a key record exists at path. When absent, key
// material is derived from deriver, or generated randomly when deriver is nil
// or cannot derive keys for algorithm. Returns true if a record was created.
func BootstrapDefaultKey(ctx context.Context, store interfaces.DescriptorStore, path interfaces.DataPath, algorithm interfaces.Algorithm, deriver interfaces.KMS, log *slog.Logger) (bool, error) {
	existing, err := store.Fetch(ctx, path)
	switch {
	case err == nil:
		log.Debug("Default key already present", slog.String("path", string(path)), slog.String("kind", fmt.Sprintf("%T", existing)))
		return false, nil
	case !errors.Is(err, interfaces.ErrNotFound):
		return false, fmt.Errorf("failed to look up default key: %w", err)
	}

	var key []byte
	if deriver != nil {
		key, err = deriver.DeriveKey(algorithm, string(path))
		if err != nil && !errors.Is(err, interfaces.ErrUnknownAlgorithm) {
			return false, err
		}
	}
	if key == nil {
		key, err = cryptoutils.GenerateKey(algorithm)
		if err != nil {
			return false, fmt.Errorf("failed to generate default key: %w", err)
		}
	}

	record := interfaces.Plain{Bytes: key, Type: interfaces.TypeKey}
	if err := store.Store(ctx, path, record); err != nil {
		return false, fmt.Errorf("failed to store default key: %w", err)
	}

	log.Info("Created default encryption key",
		slog.String("path", string(path)),
		slog.String("algorithm", string(algorithm)),
		slog.Bool("derived", deriver != nil))

	return true, nil
}
