package store

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
)

// FSData implements DataStore on the local file system, one file per payload
// under <root>/<escaped tenant>/<cid>. An alternative to the Badger payload
// store when payloads should stay individually inspectable on disk.
type FSData struct {
	root string // absolute path to the payload directory
}

var _ DataStore = (*FSData)(nil)

var cidPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// NewFSData creates a payload store rooted at dir. The directory must exist.
func NewFSData(dir string) (*FSData, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("store: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("store: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("store: root is not a directory: %s", abs)
	}
	return &FSData{root: abs}, nil
}

// path maps (tenant, cid) to a file path. The tenant is percent-escaped and
// the cid checked against its hex form so neither can traverse out of root.
func (f *FSData) path(tenant, cid string) (string, error) {
	if tenant == "" {
		return "", fmt.Errorf("store: empty tenant")
	}
	if !cidPattern.MatchString(cid) {
		return "", fmt.Errorf("store: invalid cid %q", cid)
	}
	return filepath.Join(f.root, url.PathEscape(tenant), cid), nil
}

// PutData atomically writes a payload: tmp file, fsync, rename.
func (f *FSData) PutData(tenant, cid string, data []byte) error {
	abs, err := f.path(tenant, cid)
	if err != nil {
		return err
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("store: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".othala-tmp-*")
	if err != nil {
		return fmt.Errorf("store: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("store: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("store: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("store: rename: %w", err)
	}
	success = true
	return nil
}

// GetData reads a payload.
func (f *FSData) GetData(tenant, cid string) ([]byte, error) {
	abs, err := f.path(tenant, cid)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if os.IsNotExist(err) {
		return nil, ErrNotExist
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", cid, err)
	}
	return data, nil
}

// DeleteData removes a payload. Deleting an absent payload is a no-op.
func (f *FSData) DeleteData(tenant, cid string) error {
	abs, err := f.path(tenant, cid)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: delete %s: %w", cid, err)
	}
	return nil
}
