// Package prefs persists the user's dashboard preferences across sessions.
// Only the theme choice is durable; everything else is per-session state.
package prefs

import (
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/resident-x/go-powerdash/internal/domain"
)

const themeKey = "theme"

// Store reads and writes the preference file. Persistence failures never
// propagate: a failed read falls back to the default theme and a failed
// write is logged and ignored, so storage problems cannot block the session.
type Store struct {
	path   string
	logger zerolog.Logger
}

// NewStore creates a preference store backed by the given YAML file path.
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: log.With().Str("component", "prefs").Logger(),
	}
}

// LoadTheme reads the persisted theme choice, falling back to the default
// on a missing file, unreadable file, or unrecognized value.
func (s *Store) LoadTheme() domain.Theme {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		s.logger.Debug().Err(err).Str("path", s.path).Msg("No persisted preferences, using defaults")
		return domain.ThemeLight
	}

	theme, ok := domain.ParseTheme(v.GetString(themeKey))
	if !ok {
		s.logger.Debug().Str("value", v.GetString(themeKey)).Msg("Unrecognized persisted theme, using default")
		return domain.ThemeLight
	}
	return theme
}

// SaveTheme writes the theme choice. Errors are logged and swallowed.
func (s *Store) SaveTheme(theme domain.Theme) {
	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml")
	v.Set(themeKey, theme.String())

	if err := v.WriteConfigAs(s.path); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Failed to persist theme choice")
	}
}
