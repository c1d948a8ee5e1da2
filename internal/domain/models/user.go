// internal/domain/models/user.go
package models

import (
	"time"
)

// User is the profile record kept in the users collection, one per Identity
// and keyed by the same uid.
//
// NOTE:
//   - Followers/Following are a denormalized bidirectional edge. They are only
//     written together (see the social service), never one side alone.
//   - Bookmarks holds article ids; each entry contributed exactly one to that
//     article's saved_count.
type User struct {
	ID         string `bson:"_id" json:"uid"`
	Email      string `bson:"email" json:"email"`
	Username   string `bson:"username" json:"username"`
	UsernameCI string `bson:"username_ci" json:"-"` // lowercase, diacritics-stripped

	Followers []string `bson:"followers" json:"followers"`
	Following []string `bson:"following" json:"following"`
	Bookmarks []string `bson:"bookmarks,omitempty" json:"bookmarks,omitempty"`

	PortfolioURL       string `bson:"portfolio_url,omitempty" json:"portfolioUrl,omitempty"`
	GithubURL          string `bson:"github_url,omitempty" json:"githubUrl,omitempty"`
	LinkedinURL        string `bson:"linkedin_url,omitempty" json:"linkedinUrl,omitempty"`
	ProfileImageBase64 string `bson:"profile_image_base64,omitempty" json:"profileImageBase64,omitempty"`

	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// IsFollowing reports whether u follows uid.
func (u *User) IsFollowing(uid string) bool {
	return contains(u.Following, uid)
}

// HasFollower reports whether uid follows u.
func (u *User) HasFollower(uid string) bool {
	return contains(u.Followers, uid)
}

// HasBookmark reports whether articleID is in u's bookmark set.
func (u *User) HasBookmark(articleID string) bool {
	return contains(u.Bookmarks, articleID)
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
