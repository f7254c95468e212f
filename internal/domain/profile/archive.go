package profile

import (
	"archive/tar"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/firedesk/firedesk/internal/shared/types"
)

// Archive streams the instance's profile directory as a tar.gz to w.
// Entries are rooted at the instance id so an extracted archive stays
// self-contained. The caller guarantees the instance is stopped;
// archiving a live profile would capture inconsistent SQLite state.
func (c *Configurator) Archive(inst *types.Instance, w io.Writer) error {
	info, err := os.Stat(inst.ProfilePath)
	if err != nil {
		return &types.ConfigError{ProfilePath: inst.ProfilePath, Err: err}
	}
	if !info.IsDir() {
		return &types.ConfigError{ProfilePath: inst.ProfilePath, Err: fmt.Errorf("not a directory")}
	}

	gzWriter := gzip.NewWriter(w)
	tarWriter := tar.NewWriter(gzWriter)

	err = filepath.Walk(inst.ProfilePath, func(path string, fi os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(inst.ProfilePath, path)
		if err != nil {
			return err
		}

		// Lock files are meaningless outside the live session.
		if fi.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		header, err := tar.FileInfoHeader(fi, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(filepath.Join(inst.ID, rel))

		if err := tarWriter.WriteHeader(header); err != nil {
			return err
		}

		if fi.Mode().IsRegular() {
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()
			if _, err := io.Copy(tarWriter, file); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		tarWriter.Close()
		gzWriter.Close()
		return &types.ConfigError{ProfilePath: inst.ProfilePath, Err: err}
	}

	if err := tarWriter.Close(); err != nil {
		gzWriter.Close()
		return &types.ConfigError{ProfilePath: inst.ProfilePath, Err: err}
	}
	return gzWriter.Close()
}
