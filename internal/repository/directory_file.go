package repository

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/noah-isme/davomat-bot/internal/models"
)

// FileDirectory reads the static roster, weekly schedule and admin list
// from JSON files. Files are re-read on every call so operators can edit
// them without restarting the bot.
type FileDirectory struct {
	rosterPath   string
	schedulePath string
	adminsPath   string
}

// NewFileDirectory constructs the directory over the three config files.
func NewFileDirectory(rosterPath, schedulePath, adminsPath string) *FileDirectory {
	return &FileDirectory{rosterPath: rosterPath, schedulePath: schedulePath, adminsPath: adminsPath}
}

func readJSON(path string, out interface{}) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Students returns the fixed roster in listing order.
func (d *FileDirectory) Students() ([]string, error) {
	var roster models.Roster
	if err := readJSON(d.rosterPath, &roster); err != nil {
		return nil, err
	}
	return roster.Names, nil
}

// SubjectsFor returns the subjects scheduled for the given weekday.
func (d *FileDirectory) SubjectsFor(weekday string) ([]string, error) {
	var schedule models.Schedule
	if err := readJSON(d.schedulePath, &schedule); err != nil {
		return nil, err
	}
	return schedule.SubjectsFor(weekday), nil
}

// Directory returns the admin and teacher lists.
func (d *FileDirectory) Directory() (models.Directory, error) {
	var dir models.Directory
	if err := readJSON(d.adminsPath, &dir); err != nil {
		return models.Directory{}, err
	}
	return dir, nil
}
