package curate

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/decision-curator/internal/classify"
)

// writeAtomic writes r to dst through a temp file in the same directory:
// write, fsync, rename. It returns the SHA-256 of the bytes written. The temp
// file is removed on any failure.
func writeAtomic(dst string, r io.Reader) (string, error) {
	tmp := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+"."+uuid.NewString()+".tmp")
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", eris.Wrap(err, "curate: create temp file")
	}

	h := sha256.New()
	if _, err := io.Copy(f, io.TeeReader(r, h)); err != nil {
		f.Close()      //nolint:errcheck
		os.Remove(tmp) //nolint:errcheck
		return "", eris.Wrap(err, "curate: write temp file")
	}
	if err := f.Sync(); err != nil {
		f.Close()      //nolint:errcheck
		os.Remove(tmp) //nolint:errcheck
		return "", eris.Wrap(err, "curate: fsync temp file")
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return "", eris.Wrap(err, "curate: close temp file")
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp) //nolint:errcheck
		return "", eris.Wrap(err, "curate: rename temp file")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// copyAtomic copies the file at src to dst atomically.
func copyAtomic(dst, src string) (string, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", eris.Wrapf(err, "curate: open source")
	}
	defer in.Close() //nolint:errcheck
	return writeAtomic(dst, in)
}

// existingHash returns the hash of the file at p, or "" when it is absent.
func existingHash(p string) (string, error) {
	h, err := classify.HashFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	return h, err
}
