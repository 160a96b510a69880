package repository

import (
	"context"
	"github.com/google/uuid"
	"lesson-worker/entities"
)

type SubtitleRepository interface {
	ReplaceSubtitles(ctx context.Context, videoId uuid.UUID, subtitles []*entities.Subtitle) error
	SubtitlesForVideo(ctx context.Context, videoId uuid.UUID) ([]*entities.Subtitle, error)
	SetTranslation(ctx context.Context, subtitleId uuid.UUID, translation string) error
	SetPhonetic(ctx context.Context, subtitleId uuid.UUID, phonetic string) error
	SaveGrammarAnalysis(ctx context.Context, analysis *entities.GrammarAnalysis) error
	DeleteSubtitlesForVideo(ctx context.Context, videoId uuid.UUID) error
	FindSubtitleById(ctx context.Context, id uuid.UUID) (*entities.Subtitle, error)
	UpdateSubtitle(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error
	DeleteSubtitle(ctx context.Context, id uuid.UUID) error
}

// ReplaceSubtitles deletes the video's segments and inserts the new set.
func (r *repo) ReplaceSubtitles(ctx context.Context, videoId uuid.UUID, subtitles []*entities.Subtitle) error {
	return r.Transaction(ctx, func(ctx context.Context) error {
		if err := r.DeleteSubtitlesForVideo(ctx, videoId); err != nil {
			return err
		}
		if len(subtitles) == 0 {
			return nil
		}
		for _, s := range subtitles {
			s.VideoId = videoId
		}
		return r.conn(ctx).CreateInBatches(subtitles, 200).Error
	})
}

// SubtitlesForVideo returns segments ordered by sequence number with their
// grammar analysis preloaded.
func (r *repo) SubtitlesForVideo(ctx context.Context, videoId uuid.UUID) ([]*entities.Subtitle, error) {
	var subtitles []*entities.Subtitle
	err := r.conn(ctx).
		Preload("GrammarAnalysis").
		Where("video_id = ?", videoId).
		Order("sequence_number ASC").
		Find(&subtitles).Error
	if err != nil {
		return nil, err
	}
	return subtitles, nil
}

func (r *repo) SetTranslation(ctx context.Context, subtitleId uuid.UUID, translation string) error {
	return r.conn(ctx).Model(&entities.Subtitle{}).
		Where("id = ?", subtitleId).
		Update("translation", translation).Error
}

func (r *repo) SetPhonetic(ctx context.Context, subtitleId uuid.UUID, phonetic string) error {
	return r.conn(ctx).Model(&entities.Subtitle{}).
		Where("id = ?", subtitleId).
		Update("phonetic", phonetic).Error
}

// SaveGrammarAnalysis replaces any analysis already linked to the subtitle.
func (r *repo) SaveGrammarAnalysis(ctx context.Context, analysis *entities.GrammarAnalysis) error {
	return r.Transaction(ctx, func(ctx context.Context) error {
		err := r.conn(ctx).Delete(&entities.GrammarAnalysis{}, "subtitle_id = ?", analysis.SubtitleId).Error
		if err != nil {
			return err
		}
		return r.conn(ctx).Create(analysis).Error
	})
}

func (r *repo) DeleteSubtitlesForVideo(ctx context.Context, videoId uuid.UUID) error {
	sub := r.conn(ctx).Model(&entities.Subtitle{}).Select("id").Where("video_id = ?", videoId)
	if err := r.conn(ctx).Where("subtitle_id IN (?)", sub).Delete(&entities.GrammarAnalysis{}).Error; err != nil {
		return err
	}
	return r.conn(ctx).Delete(&entities.Subtitle{}, "video_id = ?", videoId).Error
}

func (r *repo) FindSubtitleById(ctx context.Context, id uuid.UUID) (*entities.Subtitle, error) {
	subtitle := &entities.Subtitle{}
	if err := r.conn(ctx).Preload("GrammarAnalysis").First(subtitle, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return subtitle, nil
}

func (r *repo) UpdateSubtitle(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	res := r.conn(ctx).Model(&entities.Subtitle{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSubtitle removes one segment and its grammar analysis.
func (r *repo) DeleteSubtitle(ctx context.Context, id uuid.UUID) error {
	return r.Transaction(ctx, func(ctx context.Context) error {
		if err := r.conn(ctx).Delete(&entities.GrammarAnalysis{}, "subtitle_id = ?", id).Error; err != nil {
			return err
		}
		res := r.conn(ctx).Delete(&entities.Subtitle{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}
