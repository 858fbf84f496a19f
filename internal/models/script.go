// Package models defines GORM data models for RaspTerm.
package models

import "time"

// Script is an operator-defined shell command that can be run from the dashboard.
type Script struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"index;not null" json:"name"`
	Description string    `json:"description"`
	Command     string    `gorm:"not null" json:"command"`
	Icon        string    `gorm:"default:'terminal'" json:"icon"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName keeps the historical table name used by earlier releases.
func (Script) TableName() string { return "custom_scripts" }
