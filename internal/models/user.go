package models

import "time"

// User aggregates activity for one username across the import. The export
// does not carry stable user ids for every message, so the username is the
// identity (and the document _id).
type User struct {
	Username      string    `bson:"_id" json:"username"`
	FirstSeen     time.Time `bson:"first_seen" json:"first_seen"`
	LastSeen      time.Time `bson:"last_seen" json:"last_seen"`
	Conversations []string  `bson:"conversations" json:"conversations"`
	MessageCount  int       `bson:"message_count" json:"message_count"`
}
