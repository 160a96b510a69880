package entities

import (
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"time"
)

type Subtitle struct {
	ID              uuid.UUID        `json:"id" gorm:"type:uuid;primaryKey"`
	VideoId         uuid.UUID        `json:"video_id" gorm:"type:uuid;not null;index:idx_subtitles_video_seq,priority:1"`
	SequenceNumber  int              `json:"sequence_number" gorm:"not null;index:idx_subtitles_video_seq,priority:2"`
	StartTime       float64          `json:"start_time" gorm:"not null"`
	EndTime         float64          `json:"end_time" gorm:"not null"`
	OriginalText    string           `json:"original_text" gorm:"type:text;not null"`
	Translation     *string          `json:"translation" gorm:"type:text"`
	Phonetic        *string          `json:"phonetic" gorm:"type:text"`
	GrammarAnalysis *GrammarAnalysis `json:"grammar_analysis,omitempty" gorm:"foreignKey:SubtitleId;constraint:OnDelete:CASCADE"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

func (Subtitle) TableName() string {
	return "subtitles"
}

type DifficultWord struct {
	Word         string `json:"word"`
	Definition   string `json:"definition"`
	Phonetic     string `json:"phonetic,omitempty"`
	PartOfSpeech string `json:"part_of_speech,omitempty"`
}

type GrammarAnalysis struct {
	ID                uuid.UUID                          `json:"id" gorm:"type:uuid;primaryKey"`
	SubtitleId        uuid.UUID                          `json:"subtitle_id" gorm:"type:uuid;not null;uniqueIndex"`
	SentenceStructure *string                            `json:"sentence_structure" gorm:"type:varchar(100)"`
	GrammarPoints     datatypes.JSONSlice[string]        `json:"grammar_points"`
	DifficultWords    datatypes.JSONSlice[DifficultWord] `json:"difficult_words"`
	Phrases           datatypes.JSONSlice[string]        `json:"phrases"`
	Explanation       *string                            `json:"explanation" gorm:"type:text"`
	CreatedAt         time.Time                          `json:"created_at"`
	UpdatedAt         time.Time                          `json:"updated_at"`
}

func (GrammarAnalysis) TableName() string {
	return "grammar_analysis"
}
