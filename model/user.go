package model

import (
	"strings"
	"time"
)

// User represents a portal account. Google-only accounts have an empty PasswordHash.
type User struct {
	ID           uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	Email        string     `json:"email" gorm:"size:254;uniqueIndex;not null"`
	Username     string     `json:"username" gorm:"size:64;not null"`
	FirstName    string     `json:"first_name" gorm:"size:150"`
	LastName     string     `json:"last_name" gorm:"size:150"`
	PasswordHash string     `json:"-" gorm:"size:255"` // Not exposed in API responses
	DateOfBirth  *time.Time `json:"date_of_birth,omitempty" gorm:"type:date"`
	IsStaff      bool       `json:"is_staff" gorm:"default:false"`
	IsActive     bool       `json:"is_active" gorm:"default:true"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// FullName returns "first last", or the username when both are blank.
func (u *User) FullName() string {
	full := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if full == "" {
		return u.Username
	}
	return full
}
