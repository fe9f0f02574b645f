package assets

import (
	"os"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
)

// MoveTree moves src to dst. When src and dst are on different devices the
// entries are moved one by one, copying those that cannot be renamed.
func MoveTree(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), dirMode); err != nil {
		return errors.Wrapf(err, "creating parent of %s", dst)
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}
	if !isCrossDevice(err) {
		return errors.Wrapf(err, "moving %s to %s", src, dst)
	}
	return moveEntries(src, dst)
}

func moveEntries(src, dst string) error {
	if err := os.MkdirAll(dst, dirMode); err != nil {
		return errors.Wrapf(err, "creating %s", dst)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return errors.Wrapf(err, "reading %s", src)
	}
	for _, e := range entries {
		from := filepath.Join(src, e.Name())
		to := filepath.Join(dst, e.Name())
		err := os.Rename(from, to)
		if err == nil {
			continue
		}
		if !isCrossDevice(err) {
			return errors.Wrapf(err, "moving %s", from)
		}
		if err := CopyTree(from, to); err != nil {
			return err
		}
		if err := os.RemoveAll(from); err != nil {
			return errors.Wrapf(err, "removing %s", from)
		}
	}
	return errors.Wrapf(os.Remove(src), "removing %s", src)
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return linkErr.Err == syscall.EXDEV
	}
	return false
}
