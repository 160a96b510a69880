// Package media wraps ffprobe and ffmpeg for the metadata and audio steps.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/rs/zerolog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	AudioFileName     = "audio.wav"
	ThumbnailFileName = "thumbnail.jpg"
)

var ErrNoVideoStream = errors.New("no video stream found")

// MediaError is returned when a file cannot be inspected or processed.
type MediaError struct {
	Op     string
	Path   string
	Stderr string
	Err    error
}

func (e *MediaError) Error() string {
	msg := fmt.Sprintf("%s %s: %v", e.Op, filepath.Base(e.Path), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *MediaError) Unwrap() error {
	return e.Err
}

type Metadata struct {
	Duration   float64 `json:"duration"`
	Resolution string  `json:"resolution"`
	Codec      string  `json:"codec"`
	Size       int64   `json:"size"`
	BitRate    int64   `json:"bit_rate"`
}

type Extractor interface {
	ReadMetadata(ctx context.Context, path string) (Metadata, error)
	ExtractAudio(ctx context.Context, videoPath string) (string, error)
	GenerateThumbnail(ctx context.Context, videoPath string, at float64) (string, error)
}

// Runner executes a binary and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type FFmpeg struct {
	FFmpegPath  string
	FFprobePath string
	Run         Runner
}

func NewFFmpeg(ffmpegPath, ffprobePath string) *FFmpeg {
	if strings.TrimSpace(ffmpegPath) == "" {
		ffmpegPath = "ffmpeg"
	}
	if strings.TrimSpace(ffprobePath) == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpeg{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath, Run: execRunner}
}

func (f *FFmpeg) ReadMetadata(ctx context.Context, path string) (Metadata, error) {
	if _, err := os.Stat(path); err != nil {
		return Metadata{}, &MediaError{Op: "metadata", Path: path, Err: err}
	}
	output, err := f.Run(ctx, f.FFprobePath, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return Metadata{}, &MediaError{Op: "metadata", Path: path, Stderr: strings.TrimSpace(string(output)), Err: err}
	}
	meta, err := ParseMetadata(output)
	if err != nil {
		return Metadata{}, &MediaError{Op: "metadata", Path: path, Err: err}
	}
	return meta, nil
}

// ExtractAudio writes a mono 16 kHz PCM WAV next to the video, replacing any
// previous extraction.
func (f *FFmpeg) ExtractAudio(ctx context.Context, videoPath string) (string, error) {
	out := filepath.Join(filepath.Dir(videoPath), AudioFileName)
	if err := os.Remove(out); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", &MediaError{Op: "extract audio", Path: videoPath, Err: err}
	}

	args := []string{"-y", "-i", videoPath, "-vn", "-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1", out}
	zerolog.Ctx(ctx).Debug().Str("cmd", f.FFmpegPath+" "+strings.Join(args, " ")).Msg("extracting audio")
	output, err := f.Run(ctx, f.FFmpegPath, args...)
	if err != nil {
		return "", &MediaError{Op: "extract audio", Path: videoPath, Stderr: tail(output), Err: err}
	}
	return out, nil
}

// GenerateThumbnail grabs one frame at the given offset.
func (f *FFmpeg) GenerateThumbnail(ctx context.Context, videoPath string, at float64) (string, error) {
	out := filepath.Join(filepath.Dir(videoPath), ThumbnailFileName)
	args := []string{"-y", "-ss", strconv.FormatFloat(at, 'f', 3, 64), "-i", videoPath, "-vframes", "1", out}
	output, err := f.Run(ctx, f.FFmpegPath, args...)
	if err != nil {
		return "", &MediaError{Op: "thumbnail", Path: videoPath, Stderr: tail(output), Err: err}
	}
	return out, nil
}

type streamInfo struct {
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type formatInfo struct {
	Duration string `json:"duration"`
	Size     string `json:"size"`
	BitRate  string `json:"bit_rate"`
}

type metadataOutput struct {
	Streams []streamInfo `json:"streams"`
	Format  formatInfo   `json:"format"`
}

// ParseMetadata reads ffprobe JSON output. The first video stream supplies the
// resolution and codec.
func ParseMetadata(data []byte) (Metadata, error) {
	var result metadataOutput
	if err := json.Unmarshal(data, &result); err != nil {
		return Metadata{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	var video *streamInfo
	for i := range result.Streams {
		if strings.EqualFold(result.Streams[i].CodecType, "video") {
			video = &result.Streams[i]
			break
		}
	}
	if video == nil {
		return Metadata{}, ErrNoVideoStream
	}

	codec := video.CodecName
	if codec == "" {
		codec = "unknown"
	}
	return Metadata{
		Duration:   parseFloat(result.Format.Duration),
		Resolution: fmt.Sprintf("%dx%d", video.Width, video.Height),
		Codec:      codec,
		Size:       int64(parseFloat(result.Format.Size)),
		BitRate:    int64(parseFloat(result.Format.BitRate)),
	}, nil
}

func parseFloat(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}

// tail keeps the last lines of ffmpeg output, where the error usually is.
func tail(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.Join(lines, "\n")
}
