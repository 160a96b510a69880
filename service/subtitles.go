package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"lesson-worker/constant"
	"lesson-worker/dto"
	"lesson-worker/entities"
	"lesson-worker/repository"
	"strings"
)

// UpdateSubtitle applies a manual correction to one segment. Only the fields
// set in req change; the resulting cue must still end after it starts.
func (l *Lessons) UpdateSubtitle(ctx context.Context, subtitleId uuid.UUID, req dto.UpdateSubtitleRequest) (*entities.Subtitle, error) {
	subtitle, err := l.repo.FindSubtitleById(ctx, subtitleId)
	if err != nil {
		return nil, err
	}
	if err := l.editable(ctx, subtitle.VideoId); err != nil {
		return nil, err
	}

	start, end := subtitle.StartTime, subtitle.EndTime
	updates := map[string]interface{}{}
	if req.StartTime != nil {
		start = *req.StartTime
		updates["start_time"] = start
	}
	if req.EndTime != nil {
		end = *req.EndTime
		updates["end_time"] = end
	}
	if start < 0 || end <= start {
		return nil, fmt.Errorf("%w: end_time %.3f must be after start_time %.3f", ErrInvalidInput, end, start)
	}
	if req.OriginalText != nil {
		text := strings.TrimSpace(*req.OriginalText)
		if text == "" {
			return nil, fmt.Errorf("%w: original_text is empty", ErrInvalidInput)
		}
		updates["original_text"] = text
	}
	if req.Translation != nil {
		updates["translation"] = *req.Translation
	}
	if req.Phonetic != nil {
		updates["phonetic"] = *req.Phonetic
	}
	if len(updates) == 0 {
		return subtitle, nil
	}

	if err := l.repo.UpdateSubtitle(ctx, subtitleId, updates); err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().
		Str("subtitle_id", subtitleId.String()).
		Str("video_id", subtitle.VideoId.String()).
		Int("fields", len(updates)).
		Msg("subtitle edited")
	return l.repo.FindSubtitleById(ctx, subtitleId)
}

func (l *Lessons) DeleteSubtitle(ctx context.Context, subtitleId uuid.UUID) error {
	subtitle, err := l.repo.FindSubtitleById(ctx, subtitleId)
	if err != nil {
		return err
	}
	if err := l.editable(ctx, subtitle.VideoId); err != nil {
		return err
	}
	if err := l.repo.DeleteSubtitle(ctx, subtitleId); err != nil {
		return err
	}
	zerolog.Ctx(ctx).Info().Str("subtitle_id", subtitleId.String()).Msg("subtitle deleted")
	return nil
}

// editable refuses edits while a run is regenerating the video's subtitles.
func (l *Lessons) editable(ctx context.Context, videoId uuid.UUID) error {
	lesson, err := l.repo.FindLessonByVideoId(ctx, videoId)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if lesson.ProcessingStatus == constant.LessonProcessing {
		return ErrLessonBusy
	}
	return nil
}
