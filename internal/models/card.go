// Package models holds the GORM schema for the CRM tables.
package models

import "time"

// Card is a draggable kanban record: a task or a recovery-seeker intake.
// StageRef names a stage by key; it is not a foreign key.
type Card struct {
	ID        string `gorm:"primaryKey;size:36"`
	Pipeline  string `gorm:"size:64;not null;index:idx_pipeline_stage"`
	Kind      string `gorm:"size:16;not null;default:task;index"`
	StageRef  string `gorm:"size:64;index:idx_pipeline_stage"`
	Rank      string `gorm:"size:32"`
	Title     string `gorm:"not null"`
	Fields    string `gorm:"type:text"` // JSON object of domain attributes
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName pins the table name the card store addresses by string.
func (Card) TableName() string {
	return "cards"
}
