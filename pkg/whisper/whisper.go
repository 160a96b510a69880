// Package whisper turns extracted audio into time-aligned transcript segments
// by running the whisper command line tool.
package whisper

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/rs/zerolog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

type Segment struct {
	SequenceNumber int     `json:"sequence_number"`
	StartTime      float64 `json:"start_time"`
	EndTime        float64 `json:"end_time"`
	Text           string  `json:"text"`
}

type Transcriber interface {
	Transcribe(ctx context.Context, audioPath, language string) ([]Segment, error)
}

// TranscriptionError covers a missing input, a model that fails to load and
// a crashed or unreadable transcription run.
type TranscriptionError struct {
	Path string
	Msg  string
	Err  error
}

func (e *TranscriptionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transcription of %s failed: %s", filepath.Base(e.Path), e.Msg)
	}
	return fmt.Sprintf("transcription of %s failed: %s: %v", filepath.Base(e.Path), e.Msg, e.Err)
}

func (e *TranscriptionError) Unwrap() error {
	return e.Err
}

type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

type CLI struct {
	Binary   string
	Model    string
	Registry *Registry
	Run      Runner
}

func NewCLI(binary, model string, registry *Registry) *CLI {
	if binary == "" {
		binary = "whisper"
	}
	if model == "" {
		model = "medium"
	}
	return &CLI{Binary: binary, Model: model, Registry: registry, Run: execRunner}
}

func (c *CLI) Transcribe(ctx context.Context, audioPath, language string) ([]Segment, error) {
	if _, err := os.Stat(audioPath); err != nil {
		return nil, &TranscriptionError{Path: audioPath, Msg: "audio file not found", Err: err}
	}

	model, release, err := c.Registry.Acquire(ctx, c.Model)
	if err != nil {
		return nil, &TranscriptionError{Path: audioPath, Msg: "load model " + c.Model, Err: err}
	}
	defer release()

	outDir, err := os.MkdirTemp("", "whisper-*")
	if err != nil {
		return nil, &TranscriptionError{Path: audioPath, Msg: "create output dir", Err: err}
	}
	defer os.RemoveAll(outDir)

	args := []string{audioPath,
		"--model", model.Name,
		"--task", "transcribe",
		"--output_format", "json",
		"--output_dir", outDir,
		"--verbose", "False",
	}
	if language != "" {
		args = append(args, "--language", language)
	}
	if model.Path != "" {
		args = append(args, "--model_dir", filepath.Dir(model.Path))
	}

	zerolog.Ctx(ctx).Info().Str("audio", audioPath).Str("model", model.Name).Msg("starting transcription")
	output, err := c.Run(ctx, c.Binary, args...)
	if err != nil {
		return nil, &TranscriptionError{Path: audioPath, Msg: strings.TrimSpace(lastLine(output)), Err: err}
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	data, err := os.ReadFile(filepath.Join(outDir, base+".json"))
	if err != nil {
		return nil, &TranscriptionError{Path: audioPath, Msg: "read transcript", Err: err}
	}
	segments, err := ParseSegments(data)
	if err != nil {
		return nil, &TranscriptionError{Path: audioPath, Msg: "parse transcript", Err: err}
	}

	zerolog.Ctx(ctx).Info().Str("audio", audioPath).Int("segments", len(segments)).Msg("transcription completed")
	return segments, nil
}

type rawSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

type rawPayload struct {
	Segments []rawSegment `json:"segments"`
}

// ParseSegments numbers segments from 1 in the order whisper emitted them.
func ParseSegments(data []byte) ([]Segment, error) {
	var payload rawPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("parse whisper json: %w", err)
	}
	segments := make([]Segment, 0, len(payload.Segments))
	for i, s := range payload.Segments {
		segments = append(segments, Segment{
			SequenceNumber: i + 1,
			StartTime:      s.Start,
			EndTime:        s.End,
			Text:           strings.TrimSpace(s.Text),
		})
	}
	return segments, nil
}

func lastLine(output []byte) string {
	lines := strings.Split(strings.TrimSpace(string(output)), "\n")
	return lines[len(lines)-1]
}
