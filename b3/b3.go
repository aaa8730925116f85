// Package b3 fingerprints source files so a file that was already
// recognized can be found again regardless of its name.
package b3

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"lukechampine.com/blake3"
)

const digestSize = 32

// Sum returns the hex blake3 digest of everything read from r.
func Sum(r io.Reader) (string, error) {
	h := blake3.New(digestSize, nil)
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("calculating blake3 hash: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumFile hashes the file at path.
func SumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	defer f.Close()

	return Sum(f)
}
