package models

import (
	"time"
)

// Member represents a chat participant, keyed by the platform user id
type Member struct {
	ID        string    `gorm:"primaryKey;size:64"`
	CreatedAt time.Time `gorm:"index"`
}

// Stat holds the L score of a member
type Stat struct {
	MemberID  string `gorm:"primaryKey;size:64"`
	Member    Member `gorm:"foreignKey:MemberID;constraint:OnDelete:CASCADE"`
	Ls        int    `gorm:"not null;default:0"`
	UpdatedAt time.Time
}

// Phrase is a normalized trigger string learned from a member
type Phrase struct {
	ID        uint       `gorm:"primaryKey"`
	AuthorID  string     `gorm:"size:64;not null;index"`
	Author    Member     `gorm:"foreignKey:AuthorID"`
	Content   string     `gorm:"not null;uniqueIndex"`
	Responses []Response `gorm:"constraint:OnDelete:CASCADE"`
	CreatedAt time.Time
}

// Response is a reply candidate owned by a phrase
type Response struct {
	ID        uint   `gorm:"primaryKey"`
	PhraseID  uint   `gorm:"not null;index"`
	Content   string `gorm:"not null"`
	CreatedAt time.Time
}

// MemberStat is a scoreboard row
type MemberStat struct {
	MemberID string
	Ls       int
}

// ChatType distinguishes one-to-one chats from multi-party ones
type ChatType int

const (
	ChatPrivate ChatType = iota
	ChatGroup
)

// Message is an inbound chat message, independent of the transport
type Message struct {
	ID         int
	ChatID     int64
	ChatType   ChatType
	AuthorID   string
	AuthorName string
	// LanguageCode is the author's client language, if the transport reports it
	LanguageCode string
	Text         string
	// Quoted holds caption or quoted content used when Text is empty
	Quoted  string
	ReplyTo *Message
}

// IsGroup reports whether the message was sent in a multi-party chat
func (m *Message) IsGroup() bool {
	return m.ChatType == ChatGroup
}
