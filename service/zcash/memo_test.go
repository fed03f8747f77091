package zcash

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMemo(t *testing.T) {
	tests := []struct {
		name string
		memo string
		want string
	}{
		{name: "plain text", memo: "48656c6c6f", want: "Hello"},
		{name: "uppercase hex", memo: "48656C6C6F", want: "Hello"},
		{name: "mixed case hex", memo: "48656c6C6F", want: "Hello"},
		{name: "zero padded", memo: "48656c6c6f" + strings.Repeat("00", 507), want: "Hello"},
		{name: "bytes after first zero ignored", memo: "4869005a5a", want: "Hi"},
		{name: "invalid utf8 after first zero ignored", memo: "486900ff", want: "Hi"},
		{name: "multi-byte utf8", memo: "e282ac3130", want: "€10"},
		{name: "empty memo marker", memo: "F6", want: ""},
		{name: "empty memo marker lowercase padded", memo: "f6" + strings.Repeat("00", 511), want: ""},
		{name: "empty input", memo: "", want: ""},
		{name: "all zeros", memo: "0000", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeMemo(tt.memo)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeMemo_Errors(t *testing.T) {
	tests := []struct {
		name string
		memo string
	}{
		{name: "not hex", memo: "zz"},
		{name: "odd length", memo: "486"},
		{name: "invalid utf8", memo: "ff"},
		{name: "marker followed by text", memo: "f641"},
		{name: "truncated multi-byte sequence", memo: "e28200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeMemo(tt.memo)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMemo)
			assert.Empty(t, got)
		})
	}
}

func TestDecodeMemo_MatchesRawBytesWithoutZero(t *testing.T) {
	texts := []string{"a", "payment for invoice #42", "naïve café", "日本語", strings.Repeat("x", 512)}

	for _, text := range texts {
		got, err := DecodeMemo(hex.EncodeToString([]byte(text)))
		require.NoError(t, err)
		assert.Equal(t, text, got)
	}
}

func TestDecodeMemo_TruncatesAtFirstZero(t *testing.T) {
	prefix := []byte("thanks")
	for k := 0; k <= len(prefix); k++ {
		raw := append([]byte{}, prefix[:k]...)
		raw = append(raw, 0x00, 'j', 'u', 'n', 'k', 0xff)

		got, err := DecodeMemo(hex.EncodeToString(raw))
		require.NoError(t, err)
		assert.Equal(t, string(prefix[:k]), got)
	}
}

func TestDecodeMemo_Idempotent(t *testing.T) {
	memo := "5a63617368" + strings.Repeat("00", 10)

	first, err := DecodeMemo(memo)
	require.NoError(t, err)
	second, err := DecodeMemo(memo)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, "Zcash", first)
}
