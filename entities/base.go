package entities

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (c *Course) BeforeCreate(*gorm.DB) error          { assignID(&c.ID); return nil }
func (u *Unit) BeforeCreate(*gorm.DB) error            { assignID(&u.ID); return nil }
func (l *Lesson) BeforeCreate(*gorm.DB) error          { assignID(&l.ID); return nil }
func (v *Video) BeforeCreate(*gorm.DB) error           { assignID(&v.ID); return nil }
func (s *Subtitle) BeforeCreate(*gorm.DB) error        { assignID(&s.ID); return nil }
func (g *GrammarAnalysis) BeforeCreate(*gorm.DB) error { assignID(&g.ID); return nil }
func (t *ProcessingTask) BeforeCreate(*gorm.DB) error  { assignID(&t.ID); return nil }
func (j *Job) BeforeCreate(*gorm.DB) error             { assignID(&j.ID); return nil }
func (u *UserCourse) BeforeCreate(*gorm.DB) error      { assignID(&u.ID); return nil }
func (p *UserProgress) BeforeCreate(*gorm.DB) error    { assignID(&p.ID); return nil }

// All lists every model in migration order.
func All() []interface{} {
	return []interface{}{
		&Course{},
		&Unit{},
		&Video{},
		&Lesson{},
		&Subtitle{},
		&GrammarAnalysis{},
		&ProcessingTask{},
		&TaskJournal{},
		&Job{},
		&UserCourse{},
		&UserProgress{},
	}
}
