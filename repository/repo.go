package repository

import (
	"context"
	"database/sql"
	"errors"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lesson-worker/constant"
	"lesson-worker/entities"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrStaleGeneration = errors.New("lesson generation has moved on")
	ErrTaskConflict    = errors.New("task is no longer in the expected status")
)

type Repository interface {
	Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error
	GetDB() *gorm.DB
	AutoMigrate() error

	JobRepository
	CourseRepository
	LessonRepository
	VideoRepository
	JournalRepository
	TaskRepository
	SubtitleRepository
	LearningRepository
}

type JobRepository interface {
	CreateJob(ctx context.Context, job *entities.Job) error
	FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error)
	UpdateStatusJob(ctx context.Context, status constant.JobStatus, id uuid.UUID) error
	FailJob(ctx context.Context, id uuid.UUID, message string) error
}

type repo struct {
	db *gorm.DB
}

type txKey struct{}

func NewRepo(db *sql.DB) Repository {
	gormDB, _ := gorm.Open(postgres.New(postgres.Config{
		Conn: db}),
		&gorm.Config{
			Logger: logger.Default.LogMode(logger.Warn),
		},
	)
	return &repo{
		db: gormDB,
	}
}

// New wraps an already opened gorm handle.
func New(db *gorm.DB) Repository {
	return &repo{db: db}
}

func (r *repo) GetDB() *gorm.DB {
	return r.db
}

// conn returns the transaction bound to ctx, or the root handle.
func (r *repo) conn(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

// Transaction runs callback with a context carrying the transaction. Every
// repository call made with that context joins it; nested calls reuse it.
func (r *repo) Transaction(ctx context.Context, callback func(ctx context.Context) error, opts ...*sql.TxOptions) error {
	if _, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return callback(ctx)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := callback(context.WithValue(ctx, txKey{}, tx))
		if err != nil {
			return err
		}
		return nil
	}, opts...)
}

func (r *repo) AutoMigrate() error {
	return r.db.AutoMigrate(entities.All()...)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errors.Join(ErrNotFound, err)
	}
	return err
}

func (r *repo) CreateJob(ctx context.Context, job *entities.Job) error {
	return r.conn(ctx).Create(job).Error
}

func (r *repo) FindJobById(ctx context.Context, id uuid.UUID) (*entities.Job, error) {
	job := &entities.Job{}
	err := r.conn(ctx).First(job, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err)
	}

	return job, nil
}

func (r *repo) UpdateStatusJob(ctx context.Context, status constant.JobStatus, id uuid.UUID) error {
	res := r.conn(ctx).Model(&entities.Job{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repo) FailJob(ctx context.Context, id uuid.UUID, message string) error {
	return r.conn(ctx).Model(&entities.Job{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status": constant.JobStatusFailed,
		"error":  message,
	}).Error
}
