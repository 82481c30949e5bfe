package classify

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/rotisserie/eris"
)

// HashBytes returns the hex SHA-256 of b.
func HashBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashReader returns the hex SHA-256 of everything read from r.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", eris.Wrap(err, "classify: hash reader")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", eris.Wrapf(err, "classify: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return HashReader(f)
}
