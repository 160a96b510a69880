package constant

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrUnknownStatus     = errors.New("unknown status")
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "PENDING"
	JobStatusProcessing JobStatus = "PROCESSING"
	JobStatusFailed     JobStatus = "FAILED"
	JobStatusCompleted  JobStatus = "COMPLETED"
	JobStatusSuperseded JobStatus = "SUPERSEDED"
)

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusSuperseded
}

type JobType string

const (
	JobTypeLessonPipeline JobType = "lesson_pipeline"
)

type Environment string

const (
	EnvironmentProduction Environment = "production"
	EnvironmentStaging    Environment = "staging"
	EnvironmentDevelop    Environment = "develop"
)

func (e Environment) String() string {
	return string(e)
}

// LessonStatus is the coarse processing state cached on a lesson row.
type LessonStatus string

const (
	LessonPending    LessonStatus = "PENDING"
	LessonProcessing LessonStatus = "PROCESSING"
	LessonReady      LessonStatus = "READY"
	LessonFailed     LessonStatus = "FAILED"
)

func ParseLessonStatus(s string) (LessonStatus, error) {
	switch v := LessonStatus(s); v {
	case LessonPending, LessonProcessing, LessonReady, LessonFailed:
		return v, nil
	}
	return "", fmt.Errorf("%w: lesson status %q", ErrUnknownStatus, s)
}

// CanTransition reports whether a lesson may move from -> to. READY and FAILED
// only leave through a reprocess, which resets to PENDING.
func (from LessonStatus) CanTransition(to LessonStatus) bool {
	switch from {
	case LessonPending:
		return to == LessonProcessing || to == LessonFailed
	case LessonProcessing:
		return to == LessonReady || to == LessonFailed || to == LessonPending
	case LessonReady, LessonFailed:
		return to == LessonPending
	}
	return false
}

type VideoStatus string

const (
	VideoUploading  VideoStatus = "UPLOADING"
	VideoProcessing VideoStatus = "PROCESSING"
	VideoCompleted  VideoStatus = "COMPLETED"
	VideoFailed     VideoStatus = "FAILED"
)

func ParseVideoStatus(s string) (VideoStatus, error) {
	switch v := VideoStatus(s); v {
	case VideoUploading, VideoProcessing, VideoCompleted, VideoFailed:
		return v, nil
	}
	return "", fmt.Errorf("%w: video status %q", ErrUnknownStatus, s)
}

type TaskStatus string

const (
	TaskPending    TaskStatus = "PENDING"
	TaskProcessing TaskStatus = "PROCESSING"
	TaskCompleted  TaskStatus = "COMPLETED"
	TaskFailed     TaskStatus = "FAILED"
)

func ParseTaskStatus(s string) (TaskStatus, error) {
	switch v := TaskStatus(s); v {
	case TaskPending, TaskProcessing, TaskCompleted, TaskFailed:
		return v, nil
	}
	return "", fmt.Errorf("%w: task status %q", ErrUnknownStatus, s)
}

// CanTransition enforces PENDING -> PROCESSING -> {COMPLETED|FAILED}. A pending
// task may fail directly when its parent aborts before starting it.
func (from TaskStatus) CanTransition(to TaskStatus) bool {
	switch from {
	case TaskPending:
		return to == TaskProcessing || to == TaskFailed
	case TaskProcessing:
		return to == TaskProcessing || to == TaskCompleted || to == TaskFailed
	}
	return false
}

func ValidateTaskTransition(from, to TaskStatus) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: task %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func ValidateLessonTransition(from, to LessonStatus) error {
	if from == to {
		return nil
	}
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: lesson %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

type TaskType string

const (
	TaskAudioExtraction    TaskType = "AUDIO_EXTRACTION"
	TaskSubtitleGeneration TaskType = "SUBTITLE_GENERATION"
	TaskTranslation        TaskType = "TRANSLATION"
	TaskPhonetic           TaskType = "PHONETIC"
	TaskGrammarAnalysis    TaskType = "GRAMMAR_ANALYSIS"
)

// TaskTypes lists every sub-task type in pipeline order.
var TaskTypes = []TaskType{
	TaskAudioExtraction,
	TaskSubtitleGeneration,
	TaskTranslation,
	TaskPhonetic,
	TaskGrammarAnalysis,
}

func ParseTaskType(s string) (TaskType, error) {
	for _, t := range TaskTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: task type %q", ErrUnknownStatus, s)
}

// TaskWeights sum to 100.
var TaskWeights = map[TaskType]int{
	TaskAudioExtraction:    10,
	TaskSubtitleGeneration: 20,
	TaskTranslation:        30,
	TaskPhonetic:           20,
	TaskGrammarAnalysis:    20,
}

type Step string

const (
	StepInit         Step = "INIT"
	StepMetadata     Step = "METADATA"
	StepAudioExtract Step = "AUDIO_EXTRACT"
	StepSubtitle     Step = "SUBTITLE"
	StepAnalysis     Step = "ANALYSIS"
	StepWorkflow     Step = "WORKFLOW"
)

// PipelineSteps is the fixed step sequence of one run.
var PipelineSteps = []Step{StepMetadata, StepAudioExtract, StepSubtitle, StepAnalysis}

// Checkpoint is the progress_percent a lesson holds once step has completed.
func (s Step) Checkpoint() int {
	switch s {
	case StepMetadata:
		return 10
	case StepAudioExtract:
		return 30
	case StepSubtitle:
		return 60
	case StepAnalysis:
		return 90
	case StepWorkflow:
		return 100
	}
	return 0
}

// ProgressStarted is held between the run starting and METADATA completing.
const ProgressStarted = 5

type Action string

const (
	ActionStart    Action = "START"
	ActionComplete Action = "COMPLETE"
	ActionFail     Action = "FAIL"
)

func ParseAction(s string) (Action, error) {
	switch v := Action(s); v {
	case ActionStart, ActionComplete, ActionFail:
		return v, nil
	}
	return "", fmt.Errorf("%w: journal action %q", ErrUnknownStatus, s)
}

// LearningStatus is a learner's state on one lesson.
type LearningStatus string

const (
	LearningLocked    LearningStatus = "LOCKED"
	LearningActive    LearningStatus = "ACTIVE"
	LearningCompleted LearningStatus = "COMPLETED"
	LearningSkipped   LearningStatus = "SKIPPED"
)

func ParseLearningStatus(s string) (LearningStatus, error) {
	switch v := LearningStatus(s); v {
	case LearningLocked, LearningActive, LearningCompleted, LearningSkipped:
		return v, nil
	}
	return "", fmt.Errorf("%w: learning status %q", ErrUnknownStatus, s)
}
