package models

// UserSummary is the public view of a user. Users themselves are managed by
// the identity provider.
type UserSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}
