package models

import "time"

// Kind classifies a conversation.
type Kind string

const (
	KindChannel       Kind = "channel"
	KindDirectMessage Kind = "dm"
	KindMultiPartyDM  Kind = "multi_dm"
	KindPhoneCall     Kind = "phone_call"
)

// Conversation is a channel, a direct-message pair, or a multi-party DM from
// the export. The document _id is the export channel id (C… or D…), which is
// immutable and unique by construction.
type Conversation struct {
	ID           string     `bson:"_id" json:"id"`
	Name         string     `bson:"name" json:"name"`
	Kind         Kind       `bson:"kind" json:"kind"`
	CreatedAt    time.Time  `bson:"created_at,omitempty" json:"created_at,omitempty"`
	Creator      string     `bson:"creator,omitempty" json:"creator,omitempty"`
	Topic        string     `bson:"topic,omitempty" json:"topic,omitempty"`
	TopicSetBy   string     `bson:"topic_set_by,omitempty" json:"topic_set_by,omitempty"`
	TopicSetAt   *time.Time `bson:"topic_set_at,omitempty" json:"topic_set_at,omitempty"`
	Purpose      string     `bson:"purpose,omitempty" json:"purpose,omitempty"`
	PurposeSetBy string     `bson:"purpose_set_by,omitempty" json:"purpose_set_by,omitempty"`
	PurposeSetAt *time.Time `bson:"purpose_set_at,omitempty" json:"purpose_set_at,omitempty"`
	Archived     bool       `bson:"archived,omitempty" json:"archived,omitempty"`
	ArchivedBy   string     `bson:"archived_by,omitempty" json:"archived_by,omitempty"`
	ArchivedAt   *time.Time `bson:"archived_at,omitempty" json:"archived_at,omitempty"`
	Members      []string   `bson:"members,omitempty" json:"members,omitempty"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updated_at"`
}
