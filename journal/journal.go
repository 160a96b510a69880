// Package journal is the append-only step log of every lesson pipeline run.
// Lesson status and progress are caches of what Derive computes from it.
package journal

import (
	"context"
	"errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"lesson-worker/constant"
	"lesson-worker/entities"
	"lesson-worker/repository"
	"sort"
	"time"
)

type Context map[string]interface{}

type Journal struct {
	repo repository.JournalRepository
	now  func() time.Time
}

func New(repo repository.JournalRepository, now func() time.Time) *Journal {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Journal{repo: repo, now: now}
}

// Record appends one entry. When ctx carries a repository transaction the
// entry commits or rolls back with it.
func (j *Journal) Record(ctx context.Context, lessonId uuid.UUID, generation int, step constant.Step, action constant.Action, data Context) (*entities.TaskJournal, error) {
	entry := &entities.TaskJournal{
		LessonId:   lessonId,
		StepName:   step,
		Action:     action,
		Generation: generation,
		Context:    datatypes.JSONMap(data),
		CreatedAt:  j.now(),
	}
	if entry.Context == nil {
		entry.Context = datatypes.JSONMap{}
	}
	if err := j.repo.AppendJournal(ctx, entry); err != nil {
		return nil, err
	}

	zerolog.Ctx(ctx).Debug().
		Str("lesson_id", lessonId.String()).
		Str("step", string(step)).
		Str("action", string(action)).
		Int("generation", generation).
		Msg("journal entry recorded")
	return entry, nil
}

// EntriesFor returns the lesson's history newest first.
func (j *Journal) EntriesFor(ctx context.Context, lessonId uuid.UUID) ([]*entities.TaskJournal, error) {
	return j.repo.JournalEntries(ctx, lessonId)
}

// Latest returns the most recent entry for step, or nil when the step never ran.
func (j *Journal) Latest(ctx context.Context, lessonId uuid.UUID, step constant.Step) (*entities.TaskJournal, error) {
	entry, err := j.repo.LatestJournalEntry(ctx, lessonId, step)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return entry, err
}

// Last returns the most recent entry of any step, or nil.
func (j *Journal) Last(ctx context.Context, lessonId uuid.UUID) (*entities.TaskJournal, error) {
	entry, err := j.repo.LastJournalEntry(ctx, lessonId)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return entry, err
}

// State is the lesson state implied by the journal of its latest run.
type State struct {
	Status     constant.LessonStatus
	Progress   int
	Generation int
	Completed  []constant.Step
	Failure    *entities.TaskJournal
}

// AllStepsCompleted reports whether every pipeline step logged COMPLETE in the run.
func (s State) AllStepsCompleted() bool {
	done := make(map[constant.Step]bool, len(s.Completed))
	for _, step := range s.Completed {
		done[step] = true
	}
	for _, step := range constant.PipelineSteps {
		if !done[step] {
			return false
		}
	}
	return true
}

// Derive recomputes lesson status and progress from journal entries in any
// order. Only entries after the last INIT count: an INIT opens a new run.
func Derive(entries []*entities.TaskJournal) State {
	ordered := make([]*entities.TaskJournal, len(entries))
	copy(ordered, entries)
	sort.Slice(ordered, func(a, b int) bool { return ordered[a].ID < ordered[b].ID })

	run := ordered
	state := State{Status: constant.LessonPending}
	for i := len(ordered) - 1; i >= 0; i-- {
		if ordered[i].StepName == constant.StepInit {
			run = ordered[i+1:]
			state.Generation = ordered[i].Generation
			break
		}
	}

	started := false
	finished := false
	completed := make(map[constant.Step]bool)
	for _, e := range run {
		switch e.Action {
		case constant.ActionStart:
			started = true
		case constant.ActionComplete:
			if e.StepName == constant.StepWorkflow {
				finished = true
				continue
			}
			if !completed[e.StepName] {
				completed[e.StepName] = true
				state.Completed = append(state.Completed, e.StepName)
			}
			if cp := e.StepName.Checkpoint(); cp > state.Progress {
				state.Progress = cp
			}
		case constant.ActionFail:
			if state.Failure == nil {
				state.Failure = e
			}
		}
	}

	switch {
	case state.Failure != nil:
		state.Status = constant.LessonFailed
	case finished && state.AllStepsCompleted():
		state.Status = constant.LessonReady
		state.Progress = constant.StepWorkflow.Checkpoint()
	case started:
		state.Status = constant.LessonProcessing
		if state.Progress < constant.ProgressStarted {
			state.Progress = constant.ProgressStarted
		}
	}
	if state.Status == constant.LessonFailed && started && state.Progress < constant.ProgressStarted {
		state.Progress = constant.ProgressStarted
	}
	return state
}
