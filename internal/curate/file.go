package curate

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/decision-curator/internal/classify"
	"github.com/sells-group/decision-curator/internal/extract"
	"github.com/sells-group/decision-curator/internal/model"
)

// errSourceEscapes is recorded for references that point outside the landing store.
var errSourceEscapes = eris.New("curate: source path escapes landing dir")

// fileCurator curates the files of one record. It is not safe for
// concurrent use; the record's directory lock is held while it runs.
type fileCurator struct {
	*Curator
	layout    Layout
	names     *namer
	prev      map[string]model.CuratedFile
	fallbacks int
}

// curateFile stores one referenced file and reports its result and whether
// the bytes on disk were left untouched.
func (fc *fileCurator) curateFile(ref model.FileRef) (model.CuratedFile, bool) {
	out := model.CuratedFile{Source: ref.Path}

	src, err := fc.sourcePath(ref.Path)
	if err != nil {
		return failed(out, err), false
	}
	info, err := os.Stat(src)
	if errors.Is(err, fs.ErrNotExist) {
		out.Status = model.FileStatusMissingSource
		return out, false
	}
	if err != nil {
		return failed(out, eris.Wrap(err, "curate: stat source")), false
	}
	if info.IsDir() {
		return failed(out, eris.Errorf("curate: source %s is a directory", ref.Path)), false
	}

	class := classify.Classify(ref.ContentType, ref.URL, ref.Path)
	out.Ext = class.Ext
	out.ContentTypeHint = classify.ContentTypeHint(class.Kind, ref.ContentType)

	rel, owned, err := fc.names.next(class.Ext)
	if err != nil {
		return failed(out, err), false
	}
	out.Path = rel
	dst := fc.names.abs(rel)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return failed(out, eris.Wrap(err, "curate: create record dir")), false
	}

	srcHash, err := classify.HashFile(src)
	if err != nil {
		return failed(out, eris.Wrap(err, "curate: hash source")), false
	}
	out.SourceHash = srcHash

	if prev, ok := fc.prev[rel]; ok && owned && prev.SourceHash == srcHash && prev.Hash != "" {
		if cur, err := existingHash(dst); err == nil && cur == prev.Hash {
			out.Status = prev.Status
			out.Hash = prev.Hash
			return out, true
		}
	}

	if !class.Kind.IsHTML() {
		out.Status = model.FileStatusCopied
		if owned {
			if cur, err := existingHash(dst); err == nil && cur == srcHash {
				out.Hash = srcHash
				return out, true
			}
		}
		hash, err := copyAtomic(dst, src)
		if err != nil {
			return failed(out, err), false
		}
		out.Hash = hash
		return out, false
	}

	raw, err := os.ReadFile(src)
	if err != nil {
		return failed(out, eris.Wrap(err, "curate: read source")), false
	}
	body := raw
	if res := fc.clean(srcHash, raw, ref.ContentType); res.Extracted {
		body = []byte(res.HTML)
	} else {
		fc.fallbacks++
	}

	// HTML is recorded as transformed even when the extractor fell back.
	out.Status = model.FileStatusTransformed
	hash := classify.HashBytes(body)
	if owned {
		if cur, err := existingHash(dst); err == nil && cur == hash {
			out.Hash = hash
			return out, true
		}
	}
	if out.Hash, err = writeAtomic(dst, bytes.NewReader(body)); err != nil {
		return failed(out, err), false
	}
	return out, false
}

// clean runs the extractor over raw, memoized by source hash and declared type.
func (fc *fileCurator) clean(srcHash string, raw []byte, contentType string) extract.Result {
	key := srcHash + "|" + strings.ToLower(contentType)
	if fc.cache != nil {
		res, hit := fc.cache.get(key)
		fc.obs.CacheLookup(hit)
		if hit {
			fc.observeExtraction(res)
			return res
		}
	}
	res := fc.extractor.Clean(classify.DecodeHTML(raw, contentType))
	fc.cache.add(key, res)
	fc.observeExtraction(res)
	return res
}

func (fc *fileCurator) observeExtraction(res extract.Result) {
	if res.Extracted {
		fc.obs.Extraction(OutcomeExtracted)
		return
	}
	fc.obs.Extraction(res.Fallback)
}

// sourcePath resolves a landing reference to a path on disk. Relative
// references must stay inside the landing dir; absolute ones must point into it.
func (fc *fileCurator) sourcePath(ref string) (string, error) {
	p := filepath.FromSlash(ref)
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(fc.opts.LandingDir, filepath.Clean(p))
		if err != nil || !filepath.IsLocal(rel) {
			return "", errSourceEscapes
		}
		p = rel
	}
	if !filepath.IsLocal(p) {
		return "", errSourceEscapes
	}
	return filepath.Join(fc.opts.LandingDir, p), nil
}

func failed(f model.CuratedFile, err error) model.CuratedFile {
	f.Status = model.FileStatusError
	f.Hash = ""
	f.Error = err.Error()
	return f
}

func removeIfExists(p string) error {
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return eris.Wrap(err, "curate: remove stale file")
	}
	return nil
}
