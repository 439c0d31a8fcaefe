// Package channel decodes registration assertions delivered on the
// side channel.
//
// Wire format:
//
//	int64  account id, big-endian
//	uint16 text length in bytes, big-endian
//	[]byte claimed session identity (UTF-8 or Java modified UTF-8)
//
// Decoding has no side effects. Whether the claimed session matches the
// sender is decided by the caller from the transport context.
package channel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"unicode/utf16"
	"unicode/utf8"
)

// Name is the side-channel identifier assertions arrive on.
const Name = "clipstone:registration"

const (
	accountLen = 8
	lengthLen  = 2
	headerLen  = accountLen + lengthLen
)

// Assertion states that a session is linked to an external account.
type Assertion struct {
	AccountID int64
	SessionID string
}

// DecodeErrorKind categorizes decode failures.
type DecodeErrorKind string

const (
	// KindTruncated means the payload ended before a declared field did.
	KindTruncated DecodeErrorKind = "TRUNCATED"

	// KindMalformed means the text bytes are not valid, or bytes trail it.
	KindMalformed DecodeErrorKind = "MALFORMED"
)

// DecodeError describes why a payload was rejected.
type DecodeError struct {
	Kind    DecodeErrorKind
	Offset  int
	Message string
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s (offset=%d)", e.Kind, e.Message, e.Offset)
}

// IsTruncated reports whether err is a truncated-payload DecodeError.
func IsTruncated(err error) bool {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind == KindTruncated
	}
	return false
}

// IsMalformed reports whether err is a malformed-payload DecodeError.
func IsMalformed(err error) bool {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind == KindMalformed
	}
	return false
}

// Decode parses a payload. It never panics; every failure is a *DecodeError.
func Decode(b []byte) (Assertion, error) {
	if len(b) < headerLen {
		return Assertion{}, &DecodeError{
			Kind:    KindTruncated,
			Offset:  len(b),
			Message: fmt.Sprintf("need %d header bytes, have %d", headerLen, len(b)),
		}
	}

	account := int64(binary.BigEndian.Uint64(b[:accountLen]))
	n := int(binary.BigEndian.Uint16(b[accountLen:headerLen]))

	body := b[headerLen:]
	if len(body) < n {
		return Assertion{}, &DecodeError{
			Kind:    KindTruncated,
			Offset:  len(b),
			Message: fmt.Sprintf("text length %d exceeds remaining %d bytes", n, len(body)),
		}
	}
	if len(body) > n {
		return Assertion{}, &DecodeError{
			Kind:    KindMalformed,
			Offset:  headerLen + n,
			Message: fmt.Sprintf("%d trailing bytes after text", len(body)-n),
		}
	}

	text, bad := decodeText(body)
	if bad >= 0 {
		return Assertion{}, &DecodeError{
			Kind:    KindMalformed,
			Offset:  headerLen + bad,
			Message: "invalid text encoding",
		}
	}

	return Assertion{AccountID: account, SessionID: text}, nil
}

// Encode produces the wire form of an assertion.
// The session text must be valid UTF-8 and at most 65535 bytes long.
func Encode(a Assertion) ([]byte, error) {
	if !utf8.ValidString(a.SessionID) {
		return nil, fmt.Errorf("encode: session id is not valid UTF-8")
	}
	if len(a.SessionID) > math.MaxUint16 {
		return nil, fmt.Errorf("encode: session id is %d bytes, limit %d", len(a.SessionID), math.MaxUint16)
	}

	out := make([]byte, headerLen, headerLen+len(a.SessionID))
	binary.BigEndian.PutUint64(out[:accountLen], uint64(a.AccountID))
	binary.BigEndian.PutUint16(out[accountLen:headerLen], uint16(len(a.SessionID)))
	return append(out, a.SessionID...), nil
}

// decodeText accepts standard UTF-8 plus the two forms Java's writeUTF emits
// that standard UTF-8 forbids: 0xC0 0x80 for NUL, and surrogate pairs
// encoded as two 3-byte sequences. It returns the offset of the first bad
// byte, or -1.
func decodeText(b []byte) (string, int) {
	if utf8.Valid(b) {
		return string(b), -1
	}

	runes := make([]rune, 0, len(b))
	for i := 0; i < len(b); {
		if b[i] == 0xC0 && i+1 < len(b) && b[i+1] == 0x80 {
			runes = append(runes, 0)
			i += 2
			continue
		}

		if hi, ok := surrogateAt(b, i); ok && utf16.IsSurrogate(hi) && hi < 0xDC00 {
			lo, ok := surrogateAt(b, i+3)
			if !ok || lo < 0xDC00 {
				return "", i
			}
			runes = append(runes, utf16.DecodeRune(hi, lo))
			i += 6
			continue
		}

		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size <= 1 {
			return "", i
		}
		runes = append(runes, r)
		i += size
	}
	return string(runes), -1
}

// surrogateAt decodes a 3-byte sequence at i holding a UTF-16 surrogate.
func surrogateAt(b []byte, i int) (rune, bool) {
	if i+3 > len(b) || b[i] != 0xED {
		return 0, false
	}
	if b[i+1]&0xE0 != 0xA0 || b[i+2]&0xC0 != 0x80 {
		return 0, false
	}
	r := rune(b[i]&0x0F)<<12 | rune(b[i+1]&0x3F)<<6 | rune(b[i+2]&0x3F)
	return r, true
}
