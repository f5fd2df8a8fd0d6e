// Package checksum fingerprints notation sources for change detection.
package checksum

import (
	"encoding/hex"
	"io"

	"github.com/zeebo/blake3"
)

// Sum returns the hex-encoded BLAKE3 digest of data.
func Sum(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}

// SumReader hashes everything read from r.
func SumReader(r io.Reader) (string, error) {
	h := blake3.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
