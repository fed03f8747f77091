package zcash

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"unicode/utf8"
)

// emptyMemoMarker is the first byte zcashd writes into a memo field when the
// sender attached no memo. 0xF6 can never start valid UTF-8 text.
const emptyMemoMarker byte = 0xF6

// DecodeMemo turns the hex-encoded memo field of a shielded note into display text.
//
// Memo fields are fixed-size and zero padded, so everything from the first
// zero byte on is dropped. A field holding only the 0xF6 marker decodes to the
// empty string. Malformed hex and non UTF-8 content are reported as memo
// decode errors; DecodeMemo never panics on node input.
func DecodeMemo(memoHex string) (string, error) {
	raw, err := hex.DecodeString(memoHex)
	if err != nil {
		return "", fmt.Errorf("%w: invalid hex: %w", ErrMemo, err)
	}

	if i := bytes.IndexByte(raw, 0x00); i >= 0 {
		raw = raw[:i]
	}

	if len(raw) == 1 && raw[0] == emptyMemoMarker {
		return "", nil
	}

	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w: memo is not valid UTF-8", ErrMemo)
	}

	return string(raw), nil
}
