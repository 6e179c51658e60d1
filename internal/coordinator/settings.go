package coordinator

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/atomicfile"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/filter"
)

// Settings are the knobs that may change while the process runs. A run
// snapshots them when it starts.
type Settings struct {
	DryRun       bool                  `json:"dry_run"`
	Schedule     domain.ScheduleConfig `json:"schedule"`
	Whitelist    []string              `json:"whitelist"`
	Blacklist    []string              `json:"blacklist"`
	CooldownDays int                   `json:"cooldown_days" validate:"min=1,max=3650"`
}

// DefaultSettings starts in dry-run mode with a 09:00 schedule.
func DefaultSettings() Settings {
	return Settings{
		DryRun:       true,
		Schedule:     domain.ScheduleConfig{Hour: 9, Minute: 0},
		Whitelist:    []string{},
		Blacklist:    []string{},
		CooldownDays: filter.DefaultCooldownDays,
	}
}

func (s Settings) Validate() error {
	if err := validator.New().Struct(s); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}
	return nil
}

func (s Settings) clone() Settings {
	s.Whitelist = append([]string{}, s.Whitelist...)
	s.Blacklist = append([]string{}, s.Blacklist...)
	return s
}

// LoadSettings reads the settings file over the defaults. A missing file
// yields the defaults.
func LoadSettings(path string) (Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func SaveSettings(path string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	return atomicfile.WriteJSON(path, s, 0o644)
}
