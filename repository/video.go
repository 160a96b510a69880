package repository

import (
	"context"
	"github.com/google/uuid"
	"lesson-worker/constant"
	"lesson-worker/entities"
)

type VideoMetadata struct {
	Duration   float64
	Resolution string
	Format     string
	FileSize   int64
}

type VideoRepository interface {
	CreateVideo(ctx context.Context, video *entities.Video) error
	FindVideoById(ctx context.Context, id uuid.UUID) (*entities.Video, error)
	SetVideoFile(ctx context.Context, id uuid.UUID, path string, size int64) error
	SetVideoMetadata(ctx context.Context, id uuid.UUID, meta VideoMetadata) error
	SetVideoThumbnail(ctx context.Context, id uuid.UUID, path string) error
	SetVideoStatus(ctx context.Context, id uuid.UUID, status constant.VideoStatus) error
	DeleteVideo(ctx context.Context, id uuid.UUID) error
}

func (r *repo) CreateVideo(ctx context.Context, video *entities.Video) error {
	return r.conn(ctx).Create(video).Error
}

func (r *repo) FindVideoById(ctx context.Context, id uuid.UUID) (*entities.Video, error) {
	video := &entities.Video{}
	if err := r.conn(ctx).First(video, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return video, nil
}

func (r *repo) updateVideo(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	res := r.conn(ctx).Model(&entities.Video{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repo) SetVideoFile(ctx context.Context, id uuid.UUID, path string, size int64) error {
	return r.updateVideo(ctx, id, map[string]interface{}{
		"file_path": path,
		"file_size": size,
	})
}

func (r *repo) SetVideoMetadata(ctx context.Context, id uuid.UUID, meta VideoMetadata) error {
	return r.updateVideo(ctx, id, map[string]interface{}{
		"duration":   meta.Duration,
		"resolution": meta.Resolution,
		"format":     meta.Format,
		"file_size":  meta.FileSize,
	})
}

func (r *repo) SetVideoThumbnail(ctx context.Context, id uuid.UUID, path string) error {
	return r.updateVideo(ctx, id, map[string]interface{}{"thumbnail_path": path})
}

func (r *repo) SetVideoStatus(ctx context.Context, id uuid.UUID, status constant.VideoStatus) error {
	return r.updateVideo(ctx, id, map[string]interface{}{"status": status})
}

// DeleteVideo removes the video together with its subtitles, grammar analyses
// and sub-tasks, and clears lesson references to it.
func (r *repo) DeleteVideo(ctx context.Context, id uuid.UUID) error {
	return r.Transaction(ctx, func(ctx context.Context) error {
		if err := r.DeleteSubtitlesForVideo(ctx, id); err != nil {
			return err
		}
		if err := r.DeleteTasksForVideo(ctx, id); err != nil {
			return err
		}
		err := r.conn(ctx).Model(&entities.Lesson{}).
			Where("video_id = ?", id).
			Update("video_id", nil).Error
		if err != nil {
			return err
		}
		return r.conn(ctx).Delete(&entities.Video{}, "id = ?", id).Error
	})
}
