package model

import "time"

// Vote is one user's vote on a link. A user votes on a link at most once.
type Vote struct {
	ID        string    `gorm:"primaryKey;uuid;not null" json:"id"`
	CreatedAt time.Time `json:"-"`
	LinkID    string    `gorm:"uuid;not null;uniqueIndex:idx_votes_link_user" json:"-"`
	Link      *Link     `gorm:"foreignKey:LinkID" json:"link,omitempty"`
	UserID    string    `gorm:"uuid;not null;uniqueIndex:idx_votes_link_user" json:"-"`
	User      *User     `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Vote) TableName() string {
	return "votes"
}
