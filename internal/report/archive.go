package report

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// archiveSuffixes selects which files under the run's work areas count as
// captured logs for the archive.
var archiveSuffixes = []string{
	".log",
	".diffs",
	".out",
	".list",
}

// BuildArchive aggregates every log-producing file under the given
// directories into a single gzip'd tar. Entry names are prefixed with the
// base name of their root directory so files from different work areas
// cannot collide. Missing roots are skipped; an archive with no entries
// is returned as nil.
func BuildArchive(roots ...string) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	tw := tar.NewWriter(zw)

	entries := 0
	for _, root := range roots {
		if _, err := os.Stat(root); err != nil {
			continue
		}
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil // unreadable subtree; archive what we can
			}
			if d.IsDir() || !isLogFile(d.Name()) {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			if err := addFile(tw, path, filepath.Join(filepath.Base(root), rel)); err != nil {
				return err
			}
			entries++
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("archive %s: %w", root, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("close archive compressor: %w", err)
	}
	if entries == 0 {
		return nil, nil
	}
	return buf.Bytes(), nil
}

func isLogFile(name string) bool {
	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

func addFile(tw *tar.Writer, path, name string) error {
	info, err := os.Stat(path)
	if err != nil {
		return nil // vanished between walk and read
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	hdr := &tar.Header{
		Name:    filepath.ToSlash(name),
		Mode:    0o644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write archive header for %s: %w", name, err)
	}
	if _, err := io.CopyN(tw, f, info.Size()); err != nil {
		return fmt.Errorf("write archive entry %s: %w", name, err)
	}
	return nil
}
