package model

import "time"

type Source struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:64" json:"name"`
}

type Company struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Name string `gorm:"size:128;index" json:"name"`
}

type Deal struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	ContactID uint    `gorm:"index" json:"contact_id"`
	Title     string  `gorm:"size:128" json:"title"`
	Amount    float64 `json:"amount"`
	StageID   uint    `json:"stage_id"`
}

type Stage struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	PipelineID uint   `json:"pipeline_id"`
	Name       string `gorm:"size:64" json:"name"`
}

// ContactTag 多选标签的枢纽表
type ContactTag struct {
	ContactID uint   `gorm:"primaryKey" json:"contact_id"`
	Tag       string `gorm:"primaryKey;size:64" json:"tag"`
}

type Contact struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	FirstName string    `gorm:"size:64" json:"first_name"`
	LastName  string    `gorm:"size:64" json:"last_name"`
	Email     string    `gorm:"size:128" json:"email"`
	Score     int       `json:"score"`
	UserID    uint      `gorm:"index" json:"user_id"`
	SourceID  *uint     `json:"source_id"`
	Source    *Source   `json:"source,omitempty"`
	CompanyID *uint     `json:"company_id"`
	Company   *Company  `json:"company,omitempty"`
	Deals     []Deal    `json:"deals,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
