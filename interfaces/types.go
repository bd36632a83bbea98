package interfaces

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// DataPath addresses a record in storage, e.g. ".profile.firstName.".
type DataPath string

var dataPathRegexp = regexp.MustCompile(`^\.([A-Za-z0-9_-]+\.)+$`)

// NewDataPath validates a dot-delimited path. Paths must start and end with
// a dot and contain at least one non-empty segment.
func NewDataPath(path string) (DataPath, error) {
	if !dataPathRegexp.MatchString(path) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	return DataPath(path), nil
}

// String returns the path as stored.
func (p DataPath) String() string {
	return string(p)
}

// Segments returns the non-empty path segments in order.
func (p DataPath) Segments() []string {
	return strings.FieldsFunc(string(p), func(r rune) bool { return r == '.' })
}

// Validate checks the path format.
func (p DataPath) Validate() error {
	_, err := NewDataPath(string(p))
	return err
}

// DataType names the kind of plaintext a terminal record carries.
type DataType string

const (
	TypeBool   DataType = "bool"
	TypeU64    DataType = "u64"
	TypeI64    DataType = "i64"
	TypeF64    DataType = "f64"
	TypeString DataType = "string"
	TypeMedia  DataType = "media"

	// TypeKey marks key material. It is only valid at the end of a key chain
	// and is never served to a page.
	TypeKey DataType = "key"
)

// UserDataTypes lists the types that can be requested and submitted by a page.
var UserDataTypes = []DataType{TypeBool, TypeU64, TypeI64, TypeF64, TypeString, TypeMedia}

// ParseDataType parses a type name case-insensitively. An empty name yields
// the empty DataType, meaning "accept whatever is stored".
func ParseDataType(name string) (DataType, error) {
	if name == "" {
		return "", nil
	}
	t := DataType(strings.ToLower(name))
	switch t {
	case TypeBool, TypeU64, TypeI64, TypeF64, TypeString, TypeMedia, TypeKey:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDataType, name)
	}
}

func (t DataType) String() string {
	return string(t)
}

// Media is binary content with its MIME type.
type Media struct {
	MimeType string
	Data     []byte
}

// Value is typed plaintext. Exactly the field matching Type is meaningful.
type Value struct {
	Type   DataType
	Bool   bool
	U64    uint64
	I64    int64
	F64    float64
	String string
	Media  Media
	Key    []byte
}

// ZeroValue returns the "no data" value of a type.
func ZeroValue(t DataType) Value {
	return Value{Type: t}
}

// ParseValue converts a serialized plaintext into a typed Value. mimeType is
// only consulted for media.
func ParseValue(t DataType, raw []byte, mimeType string) (Value, error) {
	v := Value{Type: t}
	switch t {
	case TypeBool:
		switch string(bytes.TrimSpace(raw)) {
		case "true":
			v.Bool = true
		case "false":
			v.Bool = false
		default:
			return Value{}, fmt.Errorf("%w: %q is not a bool", ErrInvalidValue, raw)
		}
	case TypeU64:
		n, err := strconv.ParseUint(string(bytes.TrimSpace(raw)), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		v.U64 = n
	case TypeI64:
		n, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		v.I64 = n
	case TypeF64:
		f, err := strconv.ParseFloat(string(bytes.TrimSpace(raw)), 64)
		if err != nil {
			return Value{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return Value{}, fmt.Errorf("%w: %q is not a finite number", ErrInvalidValue, raw)
		}
		v.F64 = f
	case TypeString:
		v.String = string(raw)
	case TypeMedia:
		if mimeType == "" {
			return Value{}, fmt.Errorf("%w: media without mime type", ErrInvalidValue)
		}
		v.Media = Media{MimeType: mimeType, Data: append([]byte(nil), raw...)}
	case TypeKey:
		v.Key = append([]byte(nil), raw...)
	default:
		return Value{}, fmt.Errorf("%w: %q", ErrInvalidDataType, t)
	}
	return v, nil
}

// Plain serializes the value into a terminal descriptor.
func (v Value) Plain() Plain {
	p := Plain{Type: v.Type}
	switch v.Type {
	case TypeBool:
		p.Bytes = []byte(strconv.FormatBool(v.Bool))
	case TypeU64:
		p.Bytes = []byte(strconv.FormatUint(v.U64, 10))
	case TypeI64:
		p.Bytes = []byte(strconv.FormatInt(v.I64, 10))
	case TypeF64:
		p.Bytes = []byte(strconv.FormatFloat(v.F64, 'g', -1, 64))
	case TypeString:
		p.Bytes = []byte(v.String)
	case TypeMedia:
		p.Bytes = v.Media.Data
		p.MimeType = v.Media.MimeType
	case TypeKey:
		p.Bytes = v.Key
	}
	return p
}

// Text renders scalar values for display. Media and key values have no text
// form and return an empty string.
func (v Value) Text() string {
	switch v.Type {
	case TypeBool:
		return strconv.FormatBool(v.Bool)
	case TypeU64:
		return strconv.FormatUint(v.U64, 10)
	case TypeI64:
		return strconv.FormatInt(v.I64, 10)
	case TypeF64:
		return strconv.FormatFloat(v.F64, 'g', -1, 64)
	case TypeString:
		return v.String
	default:
		return ""
	}
}

// IsZero reports whether the value is the "no data" value of its type.
func (v Value) IsZero() bool {
	switch v.Type {
	case TypeMedia:
		return len(v.Media.Data) == 0
	case TypeKey:
		return len(v.Key) == 0
	default:
		return v.Text() == ZeroValue(v.Type).Text()
	}
}
