package domain

import "time"

// ProfileField names an editable profile attribute.
type ProfileField string

const (
	FieldFirstName ProfileField = "firstname"
	FieldLastName  ProfileField = "lastname"
	FieldUsername  ProfileField = "username"
	FieldBio       ProfileField = "bio"
	FieldAvatarURL ProfileField = "avatar_url"
)

// Profile holds the editable personal metadata of a user.
type Profile struct {
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Username  string `json:"username"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url"`
}

// ProfileRecord is a persisted profile row keyed by user id.
type ProfileRecord struct {
	UserID    string
	Profile   Profile
	UpdatedAt time.Time
}
