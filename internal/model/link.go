package model

import (
	"time"
)

// Link is a submitted url with its votes in the order they were cast.
type Link struct {
	ID          string    `gorm:"primaryKey;uuid;not null" json:"id"`
	CreatedAt   time.Time `gorm:"index" json:"createdAt"`
	URL         string    `gorm:"not null" json:"url"`
	Description string    `gorm:"not null" json:"description"`
	PostedByID  *string   `gorm:"uuid;index" json:"-"`
	PostedBy    *User     `gorm:"foreignKey:PostedByID" json:"postedBy"`
	Votes       []Vote    `gorm:"foreignKey:LinkID" json:"votes"`
}

func (Link) TableName() string {
	return "links"
}

// Poster returns the poster's name, Unknown for anonymous links.
func (l *Link) Poster() string {
	if l.PostedBy == nil || l.PostedBy.Name == "" {
		return "Unknown"
	}
	return l.PostedBy.Name
}

// Feed is a page of links and the total number of links matching the
// filter.
type Feed struct {
	Links []Link `json:"links"`
	Count int    `json:"count"`
}
