package models

// File is metadata for an attachment surfaced by the export. The document
// _id is the export file id.
type File struct {
	ID       string `bson:"_id" json:"id"`
	Name     string `bson:"name" json:"name"`
	Mimetype string `bson:"mimetype,omitempty" json:"mimetype,omitempty"`
	Path     string `bson:"path" json:"path"`
}
