package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashDomainSnapshot prefixes Today snapshot token digests. Other digest
// kinds take their own prefix so equal inputs never collide.
const HashDomainSnapshot = "pharmaapp/snapshot/v1"

// hashWithDomain computes sha256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) [32]byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Fingerprint returns a hex digest of the fields, separated by the unit
// separator so field boundaries cannot shift. Fields are hashed byte for
// byte.
func Fingerprint(domain string, fields ...string) string {
	sum := hashWithDomain(domain, []byte(strings.Join(fields, "\x1f")))
	return hex.EncodeToString(sum[:])
}
