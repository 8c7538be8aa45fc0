package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem is returned by Open when a sqlite file would live on
// a network mount, where its file locks cannot be trusted.
var ErrNetworkFilesystem = errors.New("sqlite database on a network filesystem")

// errFSTypeUnknown means the platform cannot name the filesystem; the
// check is skipped.
var errFSTypeUnknown = errors.New("filesystem type detection unsupported")

func checkLocalFS(path string, fsType func(dir string) (string, error)) error {
	dir := filepath.Dir(path)
	kind, err := fsType(dir)
	if errors.Is(err, errFSTypeUnknown) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspect filesystem of %s: %w", dir, err)
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "nfs", "cifs", "smbfs", "smb2", "afpfs", "webdav":
		return fmt.Errorf("%w: %s is on %s; set database.dsn (HOOKY_DATABASE_DSN) to a local path or use the postgres driver",
			ErrNetworkFilesystem, dir, kind)
	}
	return nil
}
