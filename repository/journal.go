package repository

import (
	"context"
	"github.com/google/uuid"
	"lesson-worker/constant"
	"lesson-worker/entities"
)

// JournalRepository has no update or delete; rows only disappear with their lesson.
type JournalRepository interface {
	AppendJournal(ctx context.Context, entry *entities.TaskJournal) error
	JournalEntries(ctx context.Context, lessonId uuid.UUID) ([]*entities.TaskJournal, error)
	LatestJournalEntry(ctx context.Context, lessonId uuid.UUID, step constant.Step) (*entities.TaskJournal, error)
	LastJournalEntry(ctx context.Context, lessonId uuid.UUID) (*entities.TaskJournal, error)
}

func (r *repo) AppendJournal(ctx context.Context, entry *entities.TaskJournal) error {
	return r.conn(ctx).Create(entry).Error
}

// JournalEntries returns every entry of the lesson, newest first.
func (r *repo) JournalEntries(ctx context.Context, lessonId uuid.UUID) ([]*entities.TaskJournal, error) {
	var entries []*entities.TaskJournal
	err := r.conn(ctx).
		Where("lesson_id = ?", lessonId).
		Order("id DESC").
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repo) LatestJournalEntry(ctx context.Context, lessonId uuid.UUID, step constant.Step) (*entities.TaskJournal, error) {
	entry := &entities.TaskJournal{}
	err := r.conn(ctx).
		Where("lesson_id = ? AND step_name = ?", lessonId, step).
		Order("id DESC").
		First(entry).Error
	if err != nil {
		return nil, notFound(err)
	}
	return entry, nil
}

func (r *repo) LastJournalEntry(ctx context.Context, lessonId uuid.UUID) (*entities.TaskJournal, error) {
	entry := &entities.TaskJournal{}
	err := r.conn(ctx).
		Where("lesson_id = ?", lessonId).
		Order("id DESC").
		First(entry).Error
	if err != nil {
		return nil, notFound(err)
	}
	return entry, nil
}
