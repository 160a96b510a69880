package media

import (
	"context"
	"errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"path/filepath"
	"testing"
)

const metadataJSON = `{
  "streams": [
    {"index": 0, "codec_name": "aac", "codec_type": "audio"},
    {"index": 1, "codec_name": "h264", "codec_type": "video", "width": 1280, "height": 720}
  ],
  "format": {"duration": "63.480000", "size": "10485760", "bit_rate": "1321450"}
}`

func TestParseMetadata(t *testing.T) {
	meta, err := ParseMetadata([]byte(metadataJSON))
	require.NoError(t, err)
	assert.InDelta(t, 63.48, meta.Duration, 0.0001)
	assert.Equal(t, "1280x720", meta.Resolution)
	assert.Equal(t, "h264", meta.Codec)
	assert.EqualValues(t, 10485760, meta.Size)
	assert.EqualValues(t, 1321450, meta.BitRate)
}

func TestParseMetadataWithoutVideo(t *testing.T) {
	_, err := ParseMetadata([]byte(`{"streams":[{"codec_type":"audio"}],"format":{}}`))
	require.ErrorIs(t, err, ErrNoVideoStream)
}

func TestReadMetadataMissingFile(t *testing.T) {
	f := NewFFmpeg("", "")
	_, err := f.ReadMetadata(context.Background(), filepath.Join(t.TempDir(), "nope.mp4"))

	var mediaErr *MediaError
	require.ErrorAs(t, err, &mediaErr)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExtractAudioArguments(t *testing.T) {
	dir := t.TempDir()
	video := filepath.Join(dir, "original.mp4")
	require.NoError(t, os.WriteFile(filepath.Join(dir, AudioFileName), []byte("stale"), 0o644))

	var got []string
	f := NewFFmpeg("ffmpeg", "ffprobe")
	f.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		got = append([]string{name}, args...)
		return nil, nil
	}

	out, err := f.ExtractAudio(context.Background(), video)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, AudioFileName), out)
	assert.Equal(t, []string{"ffmpeg", "-y", "-i", video, "-vn", "-acodec", "pcm_s16le", "-ar", "16000", "-ac", "1", out}, got)
	_, err = os.Stat(out)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestThumbnailFailureCarriesStderr(t *testing.T) {
	f := NewFFmpeg("ffmpeg", "ffprobe")
	f.Run = func(ctx context.Context, name string, args ...string) ([]byte, error) {
		return []byte("line1\nInvalid data found when processing input"), errors.New("exit status 1")
	}

	_, err := f.GenerateThumbnail(context.Background(), "/videos/x/original.mp4", 1.0)
	var mediaErr *MediaError
	require.ErrorAs(t, err, &mediaErr)
	assert.Equal(t, "thumbnail", mediaErr.Op)
	assert.Contains(t, err.Error(), "Invalid data found")
}
