package curate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// maxNameAttempts bounds the suffix search in one directory.
const maxNameAttempts = 10000

// namer hands out collision-safe file names inside one record directory.
// Names are base, base-2, base-3 and so on. A name is usable when the
// previous curation of the same record owned it, or when nothing exists
// there yet.
type namer struct {
	root    string // curated root on disk
	relDir  string // slash-separated, relative to root
	base    string
	owned   map[string]bool
	claimed map[string]bool
}

func newNamer(root, relDir, base string, owned []string) *namer {
	n := &namer{
		root:    root,
		relDir:  relDir,
		base:    base,
		owned:   make(map[string]bool, len(owned)),
		claimed: make(map[string]bool),
	}
	for _, p := range owned {
		n.owned[p] = true
	}
	return n
}

// next returns the relative path for the next file with extension ext and
// whether the record already owned it.
func (n *namer) next(ext string) (string, bool, error) {
	for i := 1; i <= maxNameAttempts; i++ {
		name := n.base + ext
		if i > 1 {
			name = fmt.Sprintf("%s-%d%s", n.base, i, ext)
		}
		rel := path.Join(n.relDir, name)
		if n.claimed[rel] {
			continue
		}
		if n.owned[rel] {
			n.claimed[rel] = true
			return rel, true, nil
		}
		_, err := os.Lstat(n.abs(rel))
		if errors.Is(err, fs.ErrNotExist) {
			n.claimed[rel] = true
			return rel, false, nil
		}
		if err != nil {
			return "", false, eris.Wrapf(err, "curate: stat %s", rel)
		}
	}
	return "", false, eris.Errorf("curate: no free name for %s%s in %s", n.base, ext, n.relDir)
}

// stale lists owned paths this pass did not reuse.
func (n *namer) stale() []string {
	var out []string
	for p := range n.owned {
		if !n.claimed[p] {
			out = append(out, p)
		}
	}
	return out
}

func (n *namer) abs(rel string) string {
	return filepath.Join(n.root, filepath.FromSlash(rel))
}
