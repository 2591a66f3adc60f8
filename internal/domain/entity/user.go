package entity

// User is the minimal identity the chat core needs: a stable id and a
// display name. Account management lives with the external identity provider.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	PhotoURL    string `json:"photo_url,omitempty"`
}
