package service

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"lesson-worker/constant"
	"lesson-worker/dto"
	"lesson-worker/entities"
	"lesson-worker/journal"
	"lesson-worker/pkg/caption"
	"lesson-worker/repository"
)

// Queries serves read-only views of lessons, their journal and their media.
type Queries struct {
	repo    repository.Repository
	journal *journal.Journal
}

func NewQueries(repo repository.Repository) *Queries {
	return &Queries{repo: repo, journal: journal.New(repo, nil)}
}

func (q *Queries) lesson(ctx context.Context, lessonId uuid.UUID) (*entities.Lesson, error) {
	lesson, err := q.repo.FindLessonById(ctx, lessonId)
	if err != nil {
		return nil, err
	}
	if lesson.IsDeleted {
		return nil, repository.ErrNotFound
	}
	return lesson, nil
}

// LessonStatus reports the cached status with the last journal entry. For a
// FAILED lesson Error carries the failing step's message.
func (q *Queries) LessonStatus(ctx context.Context, lessonId uuid.UUID) (dto.LessonStatusResponse, error) {
	lesson, err := q.lesson(ctx, lessonId)
	if err != nil {
		return dto.LessonStatusResponse{}, err
	}
	resp := dto.LessonStatusResponse{
		LessonId:         lesson.ID,
		VideoId:          lesson.VideoId,
		ProcessingStatus: string(lesson.ProcessingStatus),
		ProgressPercent:  lesson.ProgressPercent,
		Generation:       lesson.Generation,
	}
	last, err := q.journal.Last(ctx, lesson.ID)
	if err != nil {
		return dto.LessonStatusResponse{}, err
	}
	if last != nil {
		entry := toJournalEntry(last)
		resp.LastEntry = &entry
		if lesson.ProcessingStatus == constant.LessonFailed {
			resp.Error = last.Error()
		}
	}
	return resp, nil
}

// Journal returns the lesson's history newest first.
func (q *Queries) Journal(ctx context.Context, lessonId uuid.UUID) ([]dto.JournalEntry, error) {
	if _, err := q.lesson(ctx, lessonId); err != nil {
		return nil, err
	}
	entries, err := q.journal.EntriesFor(ctx, lessonId)
	if err != nil {
		return nil, err
	}
	return toJournalEntries(entries), nil
}

// Derived recomputes the lesson state from its journal and reports whether
// the cached status and progress agree with it.
func (q *Queries) Derived(ctx context.Context, lessonId uuid.UUID) (journal.State, bool, error) {
	lesson, err := q.repo.FindLessonById(ctx, lessonId)
	if err != nil {
		return journal.State{}, false, err
	}
	entries, err := q.journal.EntriesFor(ctx, lessonId)
	if err != nil {
		return journal.State{}, false, err
	}
	state := journal.Derive(entries)
	consistent := state.Status == lesson.ProcessingStatus && state.Progress == lesson.ProgressPercent
	return state, consistent, nil
}

func (q *Queries) VideoProgress(ctx context.Context, videoId uuid.UUID) (dto.VideoProgressResponse, error) {
	video, err := q.repo.FindVideoById(ctx, videoId)
	if err != nil {
		return dto.VideoProgressResponse{}, err
	}
	tasks, err := q.repo.TasksForVideo(ctx, videoId)
	if err != nil {
		return dto.VideoProgressResponse{}, err
	}
	agg := AggregateProgress(video.Status, tasks)

	resp := dto.VideoProgressResponse{
		VideoId:   video.ID,
		Status:    string(agg.Status),
		Progress:  agg.Progress,
		Tasks:     make([]dto.SubTaskProgress, 0, len(agg.Tasks)),
		StartedAt: agg.StartedAt,
		UpdatedAt: video.UpdatedAt,
	}
	if agg.UpdatedAt != nil {
		resp.UpdatedAt = *agg.UpdatedAt
	}
	for _, t := range agg.Tasks {
		resp.Tasks = append(resp.Tasks, dto.SubTaskProgress{
			Name:        string(t.TaskType),
			Status:      string(t.Status),
			Progress:    t.Progress,
			Error:       t.ErrorMessage,
			StartedAt:   t.StartedAt,
			CompletedAt: t.CompletedAt,
		})
	}
	return resp, nil
}

func (q *Queries) LessonSubtitles(ctx context.Context, lessonId uuid.UUID) ([]*entities.Subtitle, error) {
	lesson, err := q.lesson(ctx, lessonId)
	if err != nil {
		return nil, err
	}
	if lesson.VideoId == nil {
		return nil, ErrNoMedia
	}
	return q.repo.SubtitlesForVideo(ctx, *lesson.VideoId)
}

// LessonCaptions renders the stored subtitles as WEBVTT.
func (q *Queries) LessonCaptions(ctx context.Context, lessonId uuid.UUID) (string, error) {
	subtitles, err := q.LessonSubtitles(ctx, lessonId)
	if err != nil {
		return "", err
	}
	cues := make([]caption.Cue, 0, len(subtitles))
	for _, s := range subtitles {
		cues = append(cues, caption.Cue{Index: s.SequenceNumber, Start: s.StartTime, End: s.EndTime, Text: s.OriginalText})
	}
	return caption.Format(cues), nil
}

// LessonContent bundles what a player needs for one lesson: the stored media
// keys, the caption endpoint and every segment with its analysis.
func (q *Queries) LessonContent(ctx context.Context, lessonId uuid.UUID) (dto.LessonContentResponse, error) {
	lesson, err := q.lesson(ctx, lessonId)
	if err != nil {
		return dto.LessonContentResponse{}, err
	}
	if lesson.VideoId == nil {
		return dto.LessonContentResponse{}, ErrNoMedia
	}
	video, err := q.repo.FindVideoById(ctx, *lesson.VideoId)
	if err != nil {
		return dto.LessonContentResponse{}, err
	}
	subtitles, err := q.repo.SubtitlesForVideo(ctx, video.ID)
	if err != nil {
		return dto.LessonContentResponse{}, err
	}
	return dto.LessonContentResponse{
		LessonId:      lesson.ID,
		Title:         lesson.Title,
		VideoPath:     video.FilePath,
		ThumbnailPath: video.ThumbnailPath,
		Duration:      video.Duration,
		SubtitleUrl:   fmt.Sprintf("/api/v1/lessons/%s/subtitle.vtt", lesson.ID),
		Subtitles:     subtitles,
	}, nil
}

func (q *Queries) CourseProgress(ctx context.Context, courseId uuid.UUID) (dto.CourseProgressResponse, error) {
	if _, err := q.repo.FindCourseById(ctx, courseId); err != nil {
		return dto.CourseProgressResponse{}, err
	}
	lessons, err := q.repo.LessonsForCourse(ctx, courseId)
	if err != nil {
		return dto.CourseProgressResponse{}, err
	}
	resp := dto.CourseProgressResponse{CourseId: courseId, Lessons: make([]dto.CourseLessonProgress, 0, len(lessons))}
	for _, lesson := range lessons {
		entries, err := q.journal.EntriesFor(ctx, lesson.ID)
		if err != nil {
			return dto.CourseProgressResponse{}, err
		}
		resp.Lessons = append(resp.Lessons, dto.CourseLessonProgress{
			LessonId:         lesson.ID,
			Title:            lesson.Title,
			ProcessingStatus: string(lesson.ProcessingStatus),
			ProgressPercent:  lesson.ProgressPercent,
			Journal:          toJournalEntries(entries),
		})
	}
	return resp, nil
}

func (q *Queries) Tasks(ctx context.Context, filter repository.TaskFilter) (dto.TaskListResponse, error) {
	tasks, total, err := q.repo.ListTasks(ctx, filter)
	if err != nil {
		return dto.TaskListResponse{}, err
	}
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	resp := dto.TaskListResponse{Total: total, Limit: limit, Offset: filter.Offset, Items: make([]dto.TaskItem, 0, len(tasks))}
	for _, t := range tasks {
		resp.Items = append(resp.Items, dto.TaskItem{
			Id:          t.ID,
			VideoId:     t.VideoId,
			TaskType:    string(t.TaskType),
			Status:      string(t.Status),
			Progress:    t.Progress,
			Error:       t.ErrorMessage,
			StartedAt:   t.StartedAt,
			CompletedAt: t.CompletedAt,
			CreatedAt:   t.CreatedAt,
		})
	}
	return resp, nil
}

func toJournalEntry(e *entities.TaskJournal) dto.JournalEntry {
	return dto.JournalEntry{
		Id:         e.ID,
		StepName:   string(e.StepName),
		Action:     string(e.Action),
		Generation: e.Generation,
		Context:    e.Context,
		CreatedAt:  e.CreatedAt,
	}
}

func toJournalEntries(entries []*entities.TaskJournal) []dto.JournalEntry {
	out := make([]dto.JournalEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, toJournalEntry(e))
	}
	return out
}
