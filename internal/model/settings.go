package model

// ClassificationSettings holds a user's preference for importance
// classification. Users without a stored row have classification enabled.
type ClassificationSettings struct {
	UserID  string `json:"user_id" db:"user_id"`
	Enabled bool   `json:"enabled" db:"enabled"`
}
