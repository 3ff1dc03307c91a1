package users

import "time"

// Profile is the read model of an XCROL account exposed to authorized apps.
// The social platform owns these rows; this service only reads them.
type Profile struct {
	Hometown      *Hometown `json:"hometown,omitempty"`
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	DisplayName   string    `json:"displayName"`
	AvatarURL     string    `json:"avatarUrl,omitempty"`
	Bio           string    `json:"bio,omitempty"`
	Link          string    `json:"link,omitempty"`
	Email         string    `json:"email,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
}

// Name returns the display name, falling back to the username.
func (p *Profile) Name() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Username
}

// Hometown is the place a user pinned on the map.
type Hometown struct {
	City      string   `json:"city"`
	Region    string   `json:"region,omitempty"`
	Country   string   `json:"country"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// Connection is an accepted friendship as seen from one side.
type Connection struct {
	UserID          string `json:"id"`
	Username        string `json:"username"`
	DisplayName     string `json:"name"`
	AvatarURL       string `json:"picture,omitempty"`
	FriendshipLevel string `json:"friendship_level"`
}

// DiaryEntry is one Xcrol diary post. Private entries never leave the platform.
type DiaryEntry struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
	Body      string    `json:"content"`
	Mood      string    `json:"mood,omitempty"`
}
