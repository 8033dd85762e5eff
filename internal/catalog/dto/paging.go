package dto

// Token is the client-credentials token response.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// TrackPage is a page of album tracks.
type TrackPage struct {
	Items []Track `json:"items"`
	Next  *string `json:"next"`
	Total int     `json:"total"`
}

// Album is a full Spotify album object.
type Album struct {
	ID     string    `json:"id"`
	Name   string    `json:"name"`
	Images []Image   `json:"images"`
	Tracks TrackPage `json:"tracks"`
}

// PlaylistItem wraps a playlist entry. Track is nil for removed or
// unavailable tracks.
type PlaylistItem struct {
	Track *Track `json:"track"`
}

// PlaylistPage is a page of playlist entries.
type PlaylistPage struct {
	Items []PlaylistItem `json:"items"`
	Next  *string        `json:"next"`
	Total int            `json:"total"`
}
