package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// MessageType tags the variant of a message.
type MessageType string

const (
	TypeMessage   MessageType = "message"
	TypeJoin      MessageType = "join"
	TypeArchive   MessageType = "archive"
	TypeFileShare MessageType = "file_share"
	TypeSystem    MessageType = "system"
)

// Reaction is one emoji reaction with the users who added it.
type Reaction struct {
	Emoji string   `bson:"emoji" json:"emoji"`
	Users []string `bson:"users" json:"users"`
}

// FileRef is file metadata attached to a file-share message.
type FileRef struct {
	ID       string `bson:"id" json:"id"`
	Name     string `bson:"name" json:"name"`
	Mimetype string `bson:"mimetype,omitempty" json:"mimetype,omitempty"`
}

// Message is one parsed export line (plus attached reactions and thread
// metadata). Identity is (conversation_id, ts, seq); ts alone is not unique
// because system messages can collide on the same second.
type Message struct {
	ID              string      `bson:"_id,omitempty" json:"id"`
	ConversationID  string      `bson:"conversation_id" json:"conversation_id"`
	Username        string      `bson:"username,omitempty" json:"username,omitempty"`
	Text            string      `bson:"text" json:"text"`
	TS              time.Time   `bson:"ts" json:"ts"`
	Seq             int         `bson:"seq" json:"seq"`
	Type            MessageType `bson:"type" json:"type"`
	IsEdited        bool        `bson:"is_edited,omitempty" json:"is_edited,omitempty"`
	Reactions       []Reaction  `bson:"reactions,omitempty" json:"reactions,omitempty"`
	Files           []FileRef   `bson:"files,omitempty" json:"files,omitempty"`
	ThreadTS        *time.Time  `bson:"thread_ts,omitempty" json:"thread_ts,omitempty"`
	ReplyCount      int         `bson:"reply_count,omitempty" json:"reply_count,omitempty"`
	ReplyUsersCount int         `bson:"reply_users_count,omitempty" json:"reply_users_count,omitempty"`
	SystemAction    string      `bson:"system_action,omitempty" json:"system_action,omitempty"`
	TextHash        string      `bson:"text_hash" json:"-"`
}

// DedupHash computes the duplicate-suppression hash for a message. The
// system action is part of the key because identical system messages can
// otherwise collide within one second.
func DedupHash(text, systemAction string) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(systemAction))
	return hex.EncodeToString(h.Sum(nil))
}
