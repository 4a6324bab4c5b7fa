package twitchapi

import "time"

// UserData identifies a Twitch account.
type UserData struct {
	ID          string `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// ClipData is the metadata the playback path needs for one clip.
// Immutable once constructed; safe to share across goroutines.
type ClipData struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	EmbedURL    string    `json:"embed_url"`
	Title       string    `json:"title"`
	Creator     UserData  `json:"creator"`
	Broadcaster UserData  `json:"broadcaster"`
	GameID      string    `json:"game_id"`
	GameName    string    `json:"game_name"`
	Duration    float64   `json:"duration"` // seconds
	CreatedAt   time.Time `json:"created_at"`
	ViewCount   int       `json:"view_count"`
	IsFeatured  bool      `json:"is_featured"`
}

// ClipFilters narrows random clip selection for shoutouts.
type ClipFilters struct {
	MaxDurationSeconds int
	MaxAgeDays         int
	FeaturedOnly       bool
}
