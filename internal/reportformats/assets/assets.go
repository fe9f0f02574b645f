// Package assets manages the on-disk bundles of report formats: per-owner
// active directories, the predefined feed tree, the trash tree and the
// mirror of shared signatures.
package assets

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/tansive/reportformatsrv/internal/reportformats/config"
	"github.com/tansive/reportformatsrv/internal/reportformats/db/models"
)

const (
	activeTree    = "report_formats"
	trashTree     = "report_formats_trash"
	signatureTree = "signatures"

	// GenerateScript is the entry point of every bundle.
	GenerateScript = "generate"

	// Manifest describes a predefined format in the feed.
	Manifest = "report_format.xml"

	signatureExt = ".asc"
)

const (
	dirMode    os.FileMode = 0755
	scriptMode os.FileMode = 0755
	fileMode   os.FileMode = 0644
)

var (
	ErrEmptyFilename   = errors.New("bundle file name is empty")
	ErrInvalidFilename = errors.New("bundle file name must not contain a path")
)

// CheckFileName accepts only plain names that stay inside a bundle
// directory.
func CheckFileName(name string) error {
	if name == "" {
		return ErrEmptyFilename
	}
	if name == "." || name == ".." || filepath.Base(name) != name || strings.ContainsAny(name, `/\`) {
		return errors.Wrap(ErrInvalidFilename, name)
	}
	return nil
}

// File is one named file of a bundle with its decoded content.
type File struct {
	Name    string
	Content []byte
}

type Store struct {
	stateDir   string
	feedDir    string
	feedSigDir string
}

// New returns a store rooted at the given directories. Feed signatures are
// looked up next to the feed formats when feedSigDir is empty.
func New(stateDir, feedDir, feedSigDir string) *Store {
	if feedSigDir == "" {
		feedSigDir = feedDir
	}
	return &Store{stateDir: stateDir, feedDir: feedDir, feedSigDir: feedSigDir}
}

func NewFromConfig(c *config.ConfigParam) *Store {
	return New(c.StateDir, c.FeedDir, c.FeedSignatureDir)
}

func (s *Store) FeedDir() string {
	return s.feedDir
}

// OwnerDir holds the bundles of every format owned by owner.
func (s *Store) OwnerDir(owner string) string {
	return filepath.Join(s.stateDir, activeTree, owner)
}

// ActiveDir is the bundle directory of a format owned by owner.
func (s *Store) ActiveDir(owner, id string) string {
	return filepath.Join(s.stateDir, activeTree, owner, id)
}

func (s *Store) PredefinedDir(id string) string {
	return filepath.Join(s.feedDir, id)
}

func (s *Store) TrashRoot() string {
	return filepath.Join(s.stateDir, trashTree)
}

func (s *Store) TrashDir(key string) string {
	return filepath.Join(s.TrashRoot(), key)
}

// MirrorDir holds private signatures, usually symlinks into the feed.
func (s *Store) MirrorDir() string {
	return filepath.Join(s.stateDir, signatureTree, activeTree)
}

// FormatDir returns the directory that holds the bundle of f given where
// the row lives.
func (s *Store) FormatDir(f *models.ReportFormat) string {
	switch {
	case f.TrashKey != "":
		return s.TrashDir(f.TrashKey)
	case f.Predefined:
		return s.PredefinedDir(f.UUID)
	}
	return s.ActiveDir(f.Owner, f.UUID)
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteBundle replaces dir with a directory holding files. The generate
// script is made executable. On failure dir is removed.
func (s *Store) WriteBundle(dir string, files []File) (err error) {
	for _, f := range files {
		if err := CheckFileName(f.Name); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrapf(err, "removing old bundle %s", dir)
	}
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return errors.Wrapf(err, "creating bundle %s", dir)
	}
	defer func() {
		if err != nil {
			os.RemoveAll(dir)
		}
	}()
	// MkdirAll applies the umask, the owner directory must stay readable
	// for the unprivileged generate user.
	for _, d := range []string{filepath.Dir(dir), dir} {
		if err := os.Chmod(d, dirMode); err != nil {
			return errors.Wrapf(err, "chmod %s", d)
		}
	}
	for _, f := range files {
		mode := fileMode
		if f.Name == GenerateScript {
			mode = scriptMode
		}
		if err := writeFileAtomic(filepath.Join(dir, f.Name), f.Content, mode); err != nil {
			return err
		}
	}
	return nil
}

func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return errors.Wrapf(err, "creating %s", tmpPath)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "writing %s", tmpPath)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "syncing %s", tmpPath)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "closing %s", tmpPath)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "chmod %s", tmpPath)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "renaming %s", tmpPath)
	}
	return nil
}

// ReadFiles returns the regular files directly under dir sorted bytewise by
// name.
func ReadFiles(dir string) ([]File, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "reading bundle %s", dir)
	}
	var files []File
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "reading %s", e.Name())
		}
		files = append(files, File{Name: e.Name(), Content: content})
	}
	SortFiles(files)
	return files, nil
}

// SortFiles orders files by the bytes of their names, independent of locale.
func SortFiles(files []File) {
	sort.SliceStable(files, func(i, j int) bool {
		return bytes.Compare([]byte(files[i].Name), []byte(files[j].Name)) < 0
	})
}

// CopyTree copies src recursively to dst, keeping file modes.
func CopyTree(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return errors.Wrapf(err, "copy source %s", src)
	}
	if !info.IsDir() {
		return copyFile(src, dst, info.Mode().Perm())
	}
	if err := os.MkdirAll(dst, dirMode); err != nil {
		return errors.Wrapf(err, "creating %s", dst)
	}
	if err := os.Chmod(dst, dirMode); err != nil {
		return errors.Wrapf(err, "chmod %s", dst)
	}
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil || rel == "." {
			return err
		}
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return errors.Wrapf(os.MkdirAll(target, dirMode), "creating %s", target)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		return copyFile(path, target, fi.Mode().Perm())
	})
}

func copyFile(src, dst string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Wrapf(err, "reading %s", src)
	}
	return writeFileAtomic(dst, data, mode)
}

// RemoveTree removes dir and everything below it. A missing dir is not an
// error.
func RemoveTree(dir string) error {
	return errors.Wrapf(os.RemoveAll(dir), "removing %s", dir)
}
