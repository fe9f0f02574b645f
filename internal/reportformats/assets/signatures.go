package assets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Signature is a detached signature found on disk. CanonicalID is set when
// the signature came from the private mirror and names the feed format the
// mirror entry resolves to.
type Signature struct {
	Content     []byte
	Path        string
	CanonicalID string
}

func (s *Store) feedSignature(id string) string {
	return filepath.Join(s.feedSigDir, id+signatureExt)
}

func (s *Store) mirrorSignature(id string) string {
	return filepath.Join(s.MirrorDir(), id+signatureExt)
}

// FindSignature looks for <id>.asc in the feed signatures and then in the
// private mirror. It returns nil when neither exists.
func (s *Store) FindSignature(id string) (*Signature, error) {
	if id == "" {
		return nil, nil
	}
	path := s.feedSignature(id)
	content, err := os.ReadFile(path)
	if err == nil {
		return &Signature{Content: content, Path: path}, nil
	}
	if !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "reading %s", path)
	}

	path = s.mirrorSignature(id)
	content, err = os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	real, err := filepath.EvalSymlinks(path)
	if err != nil {
		return nil, errors.Wrapf(err, "resolving %s", path)
	}
	canonical, _, _ := strings.Cut(filepath.Base(real), ".")
	return &Signature{Content: content, Path: path, CanonicalID: canonical}, nil
}

// LinkSignature makes the signature of oldID available as the signature of
// newID through a symlink in the private mirror. The link points at the
// resolved feed signature, at the target of an existing mirror link, or at
// the feed path the signature is expected to appear at.
func (s *Store) LinkSignature(newID, oldID string) error {
	target := s.feedSignature(oldID)
	if real, err := filepath.EvalSymlinks(target); err == nil {
		target = real
	} else if dest, err := os.Readlink(s.mirrorSignature(oldID)); err == nil {
		target = dest
	}

	if err := os.MkdirAll(s.MirrorDir(), dirMode); err != nil {
		return errors.Wrapf(err, "creating %s", s.MirrorDir())
	}
	link := s.mirrorSignature(newID)
	if err := os.Symlink(target, link); err != nil {
		return errors.Wrapf(err, "linking %s", link)
	}
	return nil
}

// UnlinkSignature removes the mirror entry of id. A missing entry is not an
// error.
func (s *Store) UnlinkSignature(id string) error {
	err := os.Remove(s.mirrorSignature(id))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "removing signature of %s", id)
	}
	return nil
}

// TrashKeys lists the directory names of the trash tree. ok is false when
// the tree does not exist at all.
func (s *Store) TrashKeys() (keys []string, ok bool, err error) {
	entries, err := os.ReadDir(s.TrashRoot())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "reading %s", s.TrashRoot())
	}
	for _, e := range entries {
		if e.IsDir() {
			keys = append(keys, e.Name())
		}
	}
	return keys, true, nil
}

// FeedEntries lists the format directories of the feed that carry a
// manifest.
func (s *Store) FeedEntries() ([]string, error) {
	entries, err := os.ReadDir(s.feedDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "reading %s", s.feedDir)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() && Exists(filepath.Join(s.feedDir, e.Name(), Manifest)) {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}
