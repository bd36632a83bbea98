package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/redact-client/interfaces"
)

// DefaultMaxDepth bounds the number of fetches and decryptions per call.
const DefaultMaxDepth = 16

// Config configures an Engine.
type Config struct {
	// MaxDepth is the maximum number of hops (fetches plus decryptions).
	MaxDepth int

	// AllowedMediaTypes is the MIME allow-list for media values.
	AllowedMediaTypes []string

	// DefaultKeyPath, when set, is used to seal values written to paths that
	// have no sealed record yet. Empty means new records are stored plain.
	DefaultKeyPath interfaces.DataPath

	// DefaultAlgorithm is used together with DefaultKeyPath.
	DefaultAlgorithm interfaces.Algorithm
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() Config {
	return Config{
		MaxDepth:          DefaultMaxDepth,
		AllowedMediaTypes: []string{"image/jpeg"},
	}
}

// Engine resolves and stores values through injected collaborators.
type Engine struct {
	store  interfaces.DescriptorStore
	cipher interfaces.Cipher
	cfg    Config
	log    *slog.Logger
}

// NewEngine creates a resolution engine.
func NewEngine(store interfaces.DescriptorStore, cipher interfaces.Cipher, cfg Config, log *slog.Logger) *Engine {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if len(cfg.AllowedMediaTypes) == 0 {
		cfg.AllowedMediaTypes = DefaultConfig().AllowedMediaTypes
	}
	return &Engine{store: store, cipher: cipher, cfg: cfg, log: log}
}

// walk is the per-call resolution state. chain holds the paths on the
// current resolution branch; a key chain's paths are dropped once its key is
// obtained, so sibling layers may share a wrapping key.
type walk struct {
	visited  map[interfaces.DataPath]struct{}
	chain    []interfaces.DataPath
	hops     int
	maxDepth int
}

func (e *Engine) newWalk() *walk {
	return &walk{visited: make(map[interfaces.DataPath]struct{}), maxDepth: e.cfg.MaxDepth}
}

func (w *walk) visit(path interfaces.DataPath) error {
	if _, seen := w.visited[path]; seen {
		return fmt.Errorf("%w: %s", interfaces.ErrCycleDetected, path)
	}
	w.visited[path] = struct{}{}
	w.chain = append(w.chain, path)
	return nil
}

// unwind forgets the paths visited since mark.
func (w *walk) unwind(mark int) {
	for _, path := range w.chain[mark:] {
		delete(w.visited, path)
	}
	w.chain = w.chain[:mark]
}

func (w *walk) hop() error {
	w.hops++
	if w.hops > w.maxDepth {
		return fmt.Errorf("%w: more than %d hops", interfaces.ErrChainTooDeep, w.maxDepth)
	}
	return nil
}

// Resolve returns the typed value stored at path. An empty requested type
// accepts whatever user type is stored.
func (e *Engine) Resolve(ctx context.Context, path interfaces.DataPath, requested interfaces.DataType) (interfaces.Value, error) {
	if err := path.Validate(); err != nil {
		return interfaces.Value{}, err
	}

	w := e.newWalk()
	plain, err := e.reduce(ctx, w, interfaces.Reference{Path: path})
	if err != nil {
		return interfaces.Value{}, err
	}

	if plain.Type == interfaces.TypeKey && requested != interfaces.TypeKey {
		return interfaces.Value{}, &interfaces.TypeMismatchError{Stored: plain.Type, Requested: requested}
	}
	if requested != "" && plain.Type != requested {
		return interfaces.Value{}, &interfaces.TypeMismatchError{Stored: plain.Type, Requested: requested}
	}

	value, err := interfaces.ParseValue(plain.Type, plain.Bytes, plain.MimeType)
	if err != nil {
		return interfaces.Value{}, err
	}
	if value.Type == interfaces.TypeMedia {
		if err := e.validateMedia(value.Media); err != nil {
			return interfaces.Value{}, err
		}
	}

	e.log.Debug("Resolved value",
		slog.String("path", string(path)),
		slog.String("type", string(value.Type)),
		slog.Int("hops", w.hops))

	return value, nil
}

// reduce follows d until a Plain record is reached.
func (e *Engine) reduce(ctx context.Context, w *walk, d interfaces.Descriptor) (interfaces.Plain, error) {
	for {
		if err := ctx.Err(); err != nil {
			return interfaces.Plain{}, err
		}

		switch current := d.(type) {
		case interfaces.Plain:
			return current, nil

		case interfaces.Reference:
			if err := w.visit(current.Path); err != nil {
				return interfaces.Plain{}, err
			}
			if err := w.hop(); err != nil {
				return interfaces.Plain{}, err
			}
			next, err := e.store.Fetch(ctx, current.Path)
			if err != nil {
				return interfaces.Plain{}, fmt.Errorf("fetch %s: %w", current.Path, err)
			}
			d = next

		case interfaces.Sealed:
			key, err := e.resolveKey(ctx, w, current.Key)
			if err != nil {
				return interfaces.Plain{}, err
			}
			if err := w.hop(); err != nil {
				return interfaces.Plain{}, err
			}
			plaintext, err := e.cipher.Decrypt(ctx, current.Algorithm, current.Ciphertext, key)
			if err != nil {
				return interfaces.Plain{}, err
			}
			inner, err := interfaces.UnmarshalDescriptor(plaintext)
			if err != nil {
				return interfaces.Plain{}, fmt.Errorf("%w: sealed payload is not a record", interfaces.ErrDecrypt)
			}
			d = inner

		default:
			return interfaces.Plain{}, fmt.Errorf("%w: unknown descriptor %T", interfaces.ErrInvalidDescriptor, d)
		}
	}
}

// resolveKey reduces a key descriptor within the caller's walk. The chain
// must end in key material.
func (e *Engine) resolveKey(ctx context.Context, w *walk, d interfaces.Descriptor) ([]byte, error) {
	if d == nil {
		return nil, fmt.Errorf("%w: sealed record without key", interfaces.ErrInvalidDescriptor)
	}
	mark := len(w.chain)
	plain, err := e.reduce(ctx, w, d)
	w.unwind(mark)
	if err != nil {
		return nil, err
	}
	if plain.Type != interfaces.TypeKey {
		return nil, fmt.Errorf("%w: key chain ends in %s", interfaces.ErrDecrypt, plain.Type)
	}
	return plain.Bytes, nil
}

// SealAndStore writes value at path, sealing it under the key already in use
// there or, for new records, under the configured default key.
func (e *Engine) SealAndStore(ctx context.Context, path interfaces.DataPath, value interfaces.Value) error {
	target, existing, err := e.locate(ctx, path)
	if err != nil {
		return err
	}
	if err := e.checkNotKey(ctx, target, existing); err != nil {
		return err
	}

	algorithm, keyDesc := e.sealingKey(existing)
	return e.write(ctx, target, value, algorithm, keyDesc)
}

// SealWithKey writes value at path sealed under the key at keyPath,
// regardless of how the existing record is sealed. References at path are
// followed to the concrete record.
func (e *Engine) SealWithKey(ctx context.Context, path interfaces.DataPath, value interfaces.Value, algorithm interfaces.Algorithm, keyPath interfaces.DataPath) error {
	if err := keyPath.Validate(); err != nil {
		return err
	}
	target, existing, err := e.locate(ctx, path)
	if err != nil {
		return err
	}
	if err := e.checkNotKey(ctx, target, existing); err != nil {
		return err
	}
	if target == keyPath {
		return fmt.Errorf("%w: %s would be sealed under itself", interfaces.ErrCycleDetected, target)
	}
	return e.write(ctx, target, value, algorithm, interfaces.Reference{Path: keyPath})
}

// Link stores a reference at path pointing to target.
func (e *Engine) Link(ctx context.Context, path, target interfaces.DataPath) error {
	if err := path.Validate(); err != nil {
		return err
	}
	if err := target.Validate(); err != nil {
		return err
	}
	if path == target {
		return fmt.Errorf("%w: %s references itself", interfaces.ErrCycleDetected, path)
	}
	return e.store.Store(ctx, path, interfaces.Reference{Path: target})
}

// locate follows references from path to the concrete record location.
// existing is nil when nothing is stored there yet.
func (e *Engine) locate(ctx context.Context, path interfaces.DataPath) (interfaces.DataPath, interfaces.Descriptor, error) {
	if err := path.Validate(); err != nil {
		return "", nil, err
	}

	w := e.newWalk()
	target := path
	for {
		if err := w.visit(target); err != nil {
			return "", nil, err
		}
		if err := w.hop(); err != nil {
			return "", nil, err
		}

		d, err := e.store.Fetch(ctx, target)
		if errors.Is(err, interfaces.ErrNotFound) {
			return target, nil, nil
		}
		if err != nil {
			return "", nil, fmt.Errorf("fetch %s: %w", target, err)
		}

		ref, ok := d.(interfaces.Reference)
		if !ok {
			return target, d, nil
		}
		target = ref.Path
	}
}

// checkNotKey refuses targets holding key material, sealed or not, and the
// default key location.
func (e *Engine) checkNotKey(ctx context.Context, target interfaces.DataPath, existing interfaces.Descriptor) error {
	if e.cfg.DefaultKeyPath != "" && target == e.cfg.DefaultKeyPath {
		return fmt.Errorf("%w: %s holds the default key", interfaces.ErrInvalidDataType, target)
	}
	if existing == nil {
		return nil
	}

	plain, err := e.reduce(ctx, e.newWalk(), existing)
	if err != nil {
		return fmt.Errorf("%w: cannot inspect record at %s: %w", interfaces.ErrEncrypt, target, err)
	}
	if plain.Type == interfaces.TypeKey {
		return fmt.Errorf("%w: %s holds a key", interfaces.ErrInvalidDataType, target)
	}
	return nil
}

func (e *Engine) sealingKey(existing interfaces.Descriptor) (interfaces.Algorithm, interfaces.Descriptor) {
	if sealed, ok := existing.(interfaces.Sealed); ok {
		return sealed.Algorithm, sealed.Key
	}
	if e.cfg.DefaultKeyPath != "" {
		return e.cfg.DefaultAlgorithm, interfaces.Reference{Path: e.cfg.DefaultKeyPath}
	}
	return "", nil
}

func (e *Engine) write(ctx context.Context, target interfaces.DataPath, value interfaces.Value, algorithm interfaces.Algorithm, keyDesc interfaces.Descriptor) error {
	if err := e.validateValue(value); err != nil {
		return err
	}

	plain := value.Plain()
	if keyDesc == nil {
		if err := e.store.Store(ctx, target, plain); err != nil {
			return fmt.Errorf("store %s: %w", target, err)
		}
		e.log.Debug("Stored plain value", slog.String("path", string(target)), slog.String("type", string(value.Type)))
		return nil
	}

	key, err := e.resolveKey(ctx, e.newWalk(), keyDesc)
	if err != nil {
		return fmt.Errorf("%w: key unavailable: %w", interfaces.ErrEncrypt, err)
	}

	encoded, err := interfaces.MarshalDescriptor(plain)
	if err != nil {
		return err
	}

	ciphertext, err := e.cipher.Encrypt(ctx, algorithm, encoded, key)
	if err != nil {
		return err
	}

	record := interfaces.Sealed{Ciphertext: ciphertext, Algorithm: algorithm, Key: keyDesc}
	if err := e.store.Store(ctx, target, record); err != nil {
		return fmt.Errorf("store %s: %w", target, err)
	}

	e.log.Debug("Stored sealed value",
		slog.String("path", string(target)),
		slog.String("type", string(value.Type)),
		slog.String("algorithm", string(algorithm)))

	return nil
}

func (e *Engine) validateValue(value interfaces.Value) error {
	switch value.Type {
	case interfaces.TypeBool, interfaces.TypeU64, interfaces.TypeI64, interfaces.TypeF64, interfaces.TypeString:
		return nil
	case interfaces.TypeMedia:
		return e.validateMedia(value.Media)
	default:
		return fmt.Errorf("%w: cannot store values of type %q", interfaces.ErrInvalidDataType, value.Type)
	}
}
