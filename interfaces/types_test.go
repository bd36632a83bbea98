package interfaces

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDataPath(t *testing.T) {
	tests := []struct {
		path  string
		valid bool
	}{
		{".profile.", true},
		{".profile.firstName.", true},
		{".keys.encryption.default.", true},
		{".a-b_c.9.", true},
		{"", false},
		{".", false},
		{"..", false},
		{"profile.", false},
		{".profile", false},
		{".pro file.", false},
		{".profile..name.", false},
		{".a/b.", false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			_, err := NewDataPath(tt.path)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidPath)
			}
		})
	}

	p := DataPath(".profile.firstName.")
	assert.Equal(t, []string{"profile", "firstName"}, p.Segments())
}

func TestParseDataType(t *testing.T) {
	dt, err := ParseDataType("STRING")
	require.NoError(t, err)
	assert.Equal(t, TypeString, dt)

	dt, err = ParseDataType("")
	require.NoError(t, err)
	assert.Equal(t, DataType(""), dt)

	_, err = ParseDataType("u128")
	assert.ErrorIs(t, err, ErrInvalidDataType)
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		name    string
		dt      DataType
		raw     string
		mime    string
		wantErr bool
		check   func(t *testing.T, v Value)
	}{
		{name: "bool true", dt: TypeBool, raw: "true", check: func(t *testing.T, v Value) { assert.True(t, v.Bool) }},
		{name: "bool garbage", dt: TypeBool, raw: "yes", wantErr: true},
		{name: "u64", dt: TypeU64, raw: "18446744073709551615", check: func(t *testing.T, v Value) { assert.Equal(t, uint64(18446744073709551615), v.U64) }},
		{name: "u64 negative", dt: TypeU64, raw: "-1", wantErr: true},
		{name: "u64 overflow", dt: TypeU64, raw: "18446744073709551616", wantErr: true},
		{name: "i64 negative", dt: TypeI64, raw: "-42", check: func(t *testing.T, v Value) { assert.Equal(t, int64(-42), v.I64) }},
		{name: "i64 not a number", dt: TypeI64, raw: "abc", wantErr: true},
		{name: "f64", dt: TypeF64, raw: "3.5", check: func(t *testing.T, v Value) { assert.Equal(t, 3.5, v.F64) }},
		{name: "f64 nan", dt: TypeF64, raw: "NaN", wantErr: true},
		{name: "string", dt: TypeString, raw: "Alice", check: func(t *testing.T, v Value) { assert.Equal(t, "Alice", v.String) }},
		{name: "media", dt: TypeMedia, raw: "\xff\xd8\xff", mime: "image/jpeg", check: func(t *testing.T, v Value) { assert.Equal(t, "image/jpeg", v.Media.MimeType) }},
		{name: "media without mime", dt: TypeMedia, raw: "x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := ParseValue(tt.dt, []byte(tt.raw), tt.mime)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidValue)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dt, v.Type)
			tt.check(t, v)

			plain := v.Plain()
			again, err := ParseValue(plain.Type, plain.Bytes, plain.MimeType)
			require.NoError(t, err)
			assert.Equal(t, v, again)
		})
	}
}

func TestZeroValue(t *testing.T) {
	for _, dt := range UserDataTypes {
		assert.True(t, ZeroValue(dt).IsZero(), dt)
	}
	assert.Equal(t, "false", ZeroValue(TypeBool).Text())
	assert.Equal(t, "0", ZeroValue(TypeU64).Text())
}

func TestDescriptorEncoding(t *testing.T) {
	nested := Sealed{
		Ciphertext: []byte{1, 2, 3},
		Algorithm:  "secretbox",
		Key: Sealed{
			Ciphertext: []byte{4, 5},
			Algorithm:  "age-x25519",
			Key:        Reference{Path: ".keys.root."},
		},
	}

	data, err := MarshalDescriptor(nested)
	require.NoError(t, err)

	decoded, err := UnmarshalDescriptor(data)
	require.NoError(t, err)
	assert.Equal(t, nested, decoded)
}

func TestUnmarshalDescriptor_Invalid(t *testing.T) {
	tests := map[string]string{
		"not json":           `{`,
		"empty envelope":     `{}`,
		"two variants":       `{"plain":{"bytes":"","type":"string"},"reference":{"path":".a."}}`,
		"bad reference":      `{"reference":{"path":"a"}}`,
		"plain without type": `{"plain":{"bytes":""}}`,
		"sealed without key": `{"sealed":{"ciphertext":"","algorithm":"secretbox"}}`,
	}

	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := UnmarshalDescriptor([]byte(input))
			assert.True(t, errors.Is(err, ErrInvalidDescriptor), "got %v", err)
		})
	}
}
