package interfaces

import (
	"encoding/json"
	"fmt"
)

// Algorithm names a sealing scheme understood by a Cipher.
type Algorithm string

// Descriptor is a stored record. It is one of Plain, Sealed or Reference.
type Descriptor interface {
	isDescriptor()
}

// Plain is a terminal record carrying serialized plaintext.
type Plain struct {
	Bytes    []byte
	Type     DataType
	MimeType string
}

// Sealed carries a ciphertext whose plaintext is an encoded Descriptor. Key
// resolves to the key material; keys may themselves be sealed.
type Sealed struct {
	Ciphertext []byte
	Algorithm  Algorithm
	Key        Descriptor
}

// Reference points at another storage path.
type Reference struct {
	Path DataPath
}

func (Plain) isDescriptor()     {}
func (Sealed) isDescriptor()    {}
func (Reference) isDescriptor() {}

type plainJSON struct {
	Bytes    []byte   `json:"bytes"`
	Type     DataType `json:"type"`
	MimeType string   `json:"mime_type,omitempty"`
}

type sealedJSON struct {
	Ciphertext []byte          `json:"ciphertext"`
	Algorithm  Algorithm       `json:"algorithm"`
	Key        json.RawMessage `json:"key"`
}

type referenceJSON struct {
	Path DataPath `json:"path"`
}

type descriptorEnvelope struct {
	Plain     *plainJSON     `json:"plain,omitempty"`
	Sealed    *sealedJSON    `json:"sealed,omitempty"`
	Reference *referenceJSON `json:"reference,omitempty"`
}

// MarshalDescriptor encodes a descriptor as a JSON envelope with exactly one
// of the "plain", "sealed" or "reference" members set.
func MarshalDescriptor(d Descriptor) ([]byte, error) {
	var env descriptorEnvelope
	switch d := d.(type) {
	case Plain:
		env.Plain = &plainJSON{Bytes: d.Bytes, Type: d.Type, MimeType: d.MimeType}
	case *Plain:
		return MarshalDescriptor(*d)
	case Sealed:
		if d.Key == nil {
			return nil, fmt.Errorf("%w: sealed record without key", ErrInvalidDescriptor)
		}
		key, err := MarshalDescriptor(d.Key)
		if err != nil {
			return nil, err
		}
		env.Sealed = &sealedJSON{Ciphertext: d.Ciphertext, Algorithm: d.Algorithm, Key: key}
	case *Sealed:
		return MarshalDescriptor(*d)
	case Reference:
		env.Reference = &referenceJSON{Path: d.Path}
	case *Reference:
		return MarshalDescriptor(*d)
	default:
		return nil, fmt.Errorf("%w: unknown descriptor %T", ErrInvalidDescriptor, d)
	}
	return json.Marshal(env)
}

// UnmarshalDescriptor decodes a JSON envelope produced by MarshalDescriptor.
func UnmarshalDescriptor(data []byte) (Descriptor, error) {
	var env descriptorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
	}

	set := 0
	for _, present := range []bool{env.Plain != nil, env.Sealed != nil, env.Reference != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("%w: expected exactly one variant, got %d", ErrInvalidDescriptor, set)
	}

	switch {
	case env.Plain != nil:
		if _, err := ParseDataType(string(env.Plain.Type)); err != nil || env.Plain.Type == "" {
			return nil, fmt.Errorf("%w: plain record with type %q", ErrInvalidDescriptor, env.Plain.Type)
		}
		return Plain{Bytes: env.Plain.Bytes, Type: env.Plain.Type, MimeType: env.Plain.MimeType}, nil
	case env.Sealed != nil:
		if len(env.Sealed.Key) == 0 {
			return nil, fmt.Errorf("%w: sealed record without key", ErrInvalidDescriptor)
		}
		key, err := UnmarshalDescriptor(env.Sealed.Key)
		if err != nil {
			return nil, err
		}
		return Sealed{Ciphertext: env.Sealed.Ciphertext, Algorithm: env.Sealed.Algorithm, Key: key}, nil
	default:
		if err := env.Reference.Path.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDescriptor, err)
		}
		return Reference{Path: env.Reference.Path}, nil
	}
}
