package users

import (
	"strings"
	"time"
)

// User is a registered player account. The password hash never leaves this
// package.
type User struct {
	ID           int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Email        string    `gorm:"column:email;size:320;not null;uniqueIndex"`
	DisplayName  string    `gorm:"column:display_name;size:80;not null"`
	PasswordHash string    `gorm:"column:password_hash;size:100;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

// TableName exposes the table backing user accounts.
func (User) TableName() string {
	return "users"
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
