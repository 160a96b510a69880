// Package filestore lays out uploaded media and derived files under one root.
package filestore

import (
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/spf13/afero"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	videosDir        = "videos"
	originalBase     = "original"
	SubtitleFileName = "subtitles.vtt"
)

var ErrUnsupportedFormat = errors.New("unsupported video format")

var SupportedExtensions = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mov":  true,
	".mkv":  true,
	".webm": true,
}

// Store keeps every path relative to root. Absolute paths are only produced
// for external tools such as ffmpeg.
type Store struct {
	fs   afero.Fs
	root string
}

// NewOS roots a store on the local disk.
func NewOS(root string) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Store{fs: afero.NewBasePathFs(afero.NewOsFs(), abs), root: abs}, nil
}

// New wraps fs, whose paths are already relative to root.
func New(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: root}
}

func (s *Store) Fs() afero.Fs {
	return s.fs
}

func (s *Store) Root() string {
	return s.root
}

// ValidateExtension returns the lower-cased extension of filename when it is
// a supported video container.
func ValidateExtension(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !SupportedExtensions[ext] {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	return ext, nil
}

func VideoDir(videoId uuid.UUID) string {
	return filepath.Join(videosDir, videoId.String())
}

func OriginalPath(videoId uuid.UUID, ext string) string {
	return filepath.Join(VideoDir(videoId), originalBase+ext)
}

func SubtitlePath(videoId uuid.UUID) string {
	return filepath.Join(VideoDir(videoId), SubtitleFileName)
}

// Abs resolves a stored relative path for tools that read the disk directly.
func (s *Store) Abs(rel string) string {
	if filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(s.root, rel)
}

// Rel turns a path produced by an external tool back into a stored path.
func (s *Store) Rel(abs string) string {
	rel, err := filepath.Rel(s.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return abs
	}
	return rel
}

// Save streams r into rel, creating parent directories, and returns the
// number of bytes written.
func (s *Store) Save(rel string, r io.Reader) (int64, error) {
	if err := s.fs.MkdirAll(filepath.Dir(rel), 0o755); err != nil {
		return 0, err
	}
	f, err := s.fs.Create(rel)
	if err != nil {
		return 0, err
	}
	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(rel)
		return 0, err
	}
	return n, nil
}

func (s *Store) WriteFile(rel string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(rel), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(s.fs, rel, data, 0o644)
}

func (s *Store) ReadFile(rel string) ([]byte, error) {
	return afero.ReadFile(s.fs, rel)
}

func (s *Store) Exists(rel string) bool {
	ok, err := afero.Exists(s.fs, rel)
	return err == nil && ok
}

// RemoveVideo deletes every file stored for the video. A missing directory
// is not an error.
func (s *Store) RemoveVideo(videoId uuid.UUID) error {
	return s.fs.RemoveAll(VideoDir(videoId))
}
