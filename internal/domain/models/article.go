// internal/domain/models/article.go
package models

import "time"

// Author is a point-in-time copy of the publishing identity. It is taken when
// the article is created and does not follow later username or email changes.
type Author struct {
	UID      string `bson:"uid" json:"uid"`
	Username string `bson:"username" json:"username"`
	Email    string `bson:"email" json:"email"`
}

// Article is a published post.
//
// SavedCount is owned by the bookmark ledger: it is incremented/decremented
// there and rebuilt by the reconcile worker, never set by article edits.
type Article struct {
	ID          string    `bson:"_id" json:"id"`
	Title       string    `bson:"title" json:"title"`
	Content     string    `bson:"content" json:"content"`
	Tags        []string  `bson:"tags" json:"tags"`
	CreatedAt   time.Time `bson:"created_at" json:"createdAt"`
	SavedCount  int64     `bson:"saved_count" json:"savedCount"`
	Author      Author    `bson:"author" json:"author"`
	ImageBase64 string    `bson:"image_base64,omitempty" json:"imageBase64,omitempty"`

	UpdatedAt *time.Time `bson:"updated_at,omitempty" json:"updatedAt,omitempty"`
}
