package model

import "time"

// User is an account that posts links and votes.
type User struct {
	ID        string    `gorm:"primaryKey;uuid;not null" json:"id"`
	CreatedAt time.Time `json:"-"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email,omitempty"`
	// Password is a bcrypt hash.
	Password string `gorm:"not null" json:"-"`
}

func (User) TableName() string {
	return "users"
}
