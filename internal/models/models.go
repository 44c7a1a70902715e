package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// All returns every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&MarkingGuide{},
		&Submission{},
		&Mapping{},
		&GradingResult{},
		&ActivityLog{},
	}
}

func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

// BeforeCreate assigns a UUID when none was set.
func (m *Mapping) BeforeCreate(*gorm.DB) error {
	newID(&m.ID)
	return nil
}

// BeforeCreate assigns a UUID when none was set.
func (r *GradingResult) BeforeCreate(*gorm.DB) error {
	newID(&r.ID)
	return nil
}

// BeforeCreate assigns a UUID when none was set.
func (s *Submission) BeforeCreate(*gorm.DB) error {
	newID(&s.ID)
	return nil
}

// BeforeCreate assigns a UUID when none was set.
func (g *MarkingGuide) BeforeCreate(*gorm.DB) error {
	newID(&g.ID)
	return nil
}
