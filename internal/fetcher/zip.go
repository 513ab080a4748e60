package fetcher

import (
	"archive/zip"
	"errors"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// ExtractZIP unpacks every file of archive under dir and returns their
// paths in archive order. Directory entries are implied by file paths.
// Entries that would land outside dir are rejected.
func ExtractZIP(archive, dir string) ([]string, error) {
	zr, err := zip.OpenReader(archive)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, eris.Wrapf(err, "zip: open archive %s", archive)
	}
	defer zr.Close() //nolint:errcheck

	var out []string
	for _, entry := range zr.File {
		if entry.FileInfo().IsDir() {
			continue
		}
		name := filepath.FromSlash(entry.Name)
		if !filepath.IsLocal(name) {
			return out, eris.Errorf("zip: entry %q escapes the target dir (zip slip)", entry.Name)
		}

		target := filepath.Join(dir, name)
		if err := unpack(entry, target); err != nil {
			return out, err
		}
		out = append(out, target)
	}
	return out, nil
}

func unpack(entry *zip.File, target string) error {
	rc, err := entry.Open()
	if err != nil {
		return eris.Wrapf(err, "zip: open entry %s", entry.Name)
	}
	defer rc.Close() //nolint:errcheck

	if _, err := copyToFile(target, rc); err != nil {
		return eris.Wrapf(err, "zip: extract %s", entry.Name)
	}
	return nil
}

// FindExt returns the first path with extension ext, ignoring case.
func FindExt(paths []string, ext string) (string, bool) {
	for _, p := range paths {
		if strings.EqualFold(filepath.Ext(p), ext) {
			return p, true
		}
	}
	return "", false
}
