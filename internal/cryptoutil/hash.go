package cryptoutil

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/keithlinneman/oboxads-web/internal/xerrors"
)

const sha256HexLen = 64

// HashEqual compares two hex digests in constant time.
func HashEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func SHA256Hex(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// ParseSHA256 accepts "<hex>" or "sha256:<hex>" and returns the lowercase
// hex digest.
func ParseSHA256(s string) (string, error) {
	s = strings.TrimSpace(s)
	if algo, rest, ok := strings.Cut(s, ":"); ok {
		if !strings.EqualFold(algo, "sha256") {
			return "", xerrors.Newf("unsupported digest algorithm %q", algo)
		}
		s = rest
	}
	s = strings.ToLower(s)
	if len(s) != sha256HexLen {
		return "", xerrors.Newf("sha256 digest must be %d hex chars, got %d", sha256HexLen, len(s))
	}
	if _, err := hex.DecodeString(s); err != nil {
		return "", xerrors.Wrap(err, "decode sha256 digest")
	}
	return s, nil
}
