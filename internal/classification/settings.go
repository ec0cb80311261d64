package classification

import "context"

// SettingsStore is the persistence behind Settings.
type SettingsStore interface {
	IsClassificationEnabled(ctx context.Context, userID string) (bool, error)
	SetClassificationEnabled(ctx context.Context, userID string, enabled bool) error
}

// Settings exposes per-user classification preferences.
type Settings struct {
	store SettingsStore
}

// NewSettings creates Settings over s.
func NewSettings(s SettingsStore) *Settings {
	return &Settings{store: s}
}

// IsClassificationEnabled reports whether training should run for userID.
func (s *Settings) IsClassificationEnabled(ctx context.Context, userID string) (bool, error) {
	return s.store.IsClassificationEnabled(ctx, userID)
}

// SetEnabled changes the preference of userID.
func (s *Settings) SetEnabled(ctx context.Context, userID string, enabled bool) error {
	return s.store.SetClassificationEnabled(ctx, userID, enabled)
}
