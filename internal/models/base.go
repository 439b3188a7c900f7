package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base contains common columns for all tables
type Base struct {
	ID        string         `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate will set a UUID rather than numeric ID
func (base *Base) BeforeCreate(tx *gorm.DB) error {
	if base.ID == "" {
		base.ID = uuid.New().String()
	}
	return nil
}

type UserRole string

const (
	UserRoleAdmin UserRole = "admin"
	UserRoleUser  UserRole = "user"
)

// Upload folders on the image host, one per content section.
const (
	FolderHero     = "hero"
	FolderClients  = "clients"
	FolderServices = "services"
	FolderUploads  = "uploads"
)

// MaxServices is the maximum number of live services.
const MaxServices = 5

// All returns every persisted model, in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&HeroContent{},
		&ClientLogos{},
		&Service{},
	}
}
