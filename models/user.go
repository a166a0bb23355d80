package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the signed-in customer's profile as returned by the API
type User struct {
	ID     uint64 `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Phone  string `json:"phone,omitempty"`
	Avatar string `json:"avatar,omitempty"`
}

// AuthSession is the locally persisted bearer token plus cached profile
type AuthSession struct {
	ID        uint           `gorm:"primaryKey" json:"-"`
	Token     string         `gorm:"type:text;not null" json:"-"`
	User      User           `gorm:"embedded;embeddedPrefix:user_" json:"user"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the AuthSession model
func (AuthSession) TableName() string {
	return "auth_sessions"
}
