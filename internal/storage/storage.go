package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/Tiliavir/punch/internal/model"
)

// ErrCorrupt marks a flag file that could not be decoded. The file has been
// moved aside by the time the error is returned.
var ErrCorrupt = errors.New("corrupt flag file")

// BaseDir returns the root data directory (~/.punch).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".punch"), nil
}

// dayFilePath returns the path of the flag file for userID on the given date.
// User ids are path-escaped so they can never leave the flags directory.
func dayFilePath(base, userID string, t time.Time) string {
	return filepath.Join(base, "flags", url.PathEscape(userID), t.Format("2006"), t.Format("01"), t.Format("02")+".json")
}

// LoadDay loads the DayFile for userID on the given date. Returns an empty
// DayFile if not found.
func LoadDay(base, userID string, t time.Time) (model.DayFile, error) {
	path := dayFilePath(base, userID, t)
	empty := model.DayFile{UserID: userID, Date: t.Format(model.DateLayout)}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return empty, nil
	}
	if err != nil {
		return model.DayFile{}, fmt.Errorf("storage error reading %s: %w", path, err)
	}

	var df model.DayFile
	if err := json.Unmarshal(data, &df); err != nil {
		// Back up corrupt file and abort.
		backupPath := path + ".corrupt"
		_ = os.Rename(path, backupPath)
		return empty, fmt.Errorf("%w %s (backed up to %s): %w", ErrCorrupt, path, backupPath, err)
	}
	return df, nil
}

// SaveDay atomically writes a DayFile for userID on the given date.
func SaveDay(base, userID string, t time.Time, df model.DayFile) error {
	path := dayFilePath(base, userID, t)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("storage error creating directories: %w", err)
	}

	data, err := json.MarshalIndent(df, "", "  ")
	if err != nil {
		return fmt.Errorf("storage error marshalling JSON: %w", err)
	}

	// Atomic write: write to temp file then rename.
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("storage error writing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("storage error renaming temp file: %w", err)
	}
	return nil
}

// Cache is the file-backed local attendance cache: one flag file per user
// per day, holding whether clock-in and clock-out were recorded.
type Cache struct {
	base string
	now  func() time.Time
}

// NewCache returns a Cache rooted at base.
func NewCache(base string) *Cache {
	return &Cache{base: base, now: time.Now}
}

// Get reports whether the flag of the given kind is set. A corrupt file is
// backed up and reported; the flag then reads as unset.
func (c *Cache) Get(userID string, day time.Time, kind model.Action) (bool, error) {
	df, err := LoadDay(c.base, userID, day)
	if err != nil {
		return false, err
	}
	switch kind {
	case model.ActionClockIn:
		return df.ClockIn, nil
	case model.ActionClockOut:
		return df.ClockOut, nil
	}
	return false, fmt.Errorf("unknown flag kind %q", kind)
}

// Flags loads both flags of a day in one read. A corrupt file reads as no
// flags set.
func (c *Cache) Flags(userID string, day time.Time) (model.LocalFlags, error) {
	df, err := LoadDay(c.base, userID, day)
	if err != nil {
		return model.LocalFlags{}, err
	}
	return df.Flags(), nil
}

// Set stores the flag of the given kind. Setting a flag to its current value
// does not touch the file.
func (c *Cache) Set(userID string, day time.Time, kind model.Action, value bool) error {
	df, err := LoadDay(c.base, userID, day)
	if err != nil && !errors.Is(err, ErrCorrupt) {
		return err
	}
	// A corrupt file was moved aside; always rewrite in that case.
	dirty := err != nil
	switch kind {
	case model.ActionClockIn:
		dirty = dirty || df.ClockIn != value
		df.ClockIn = value
	case model.ActionClockOut:
		dirty = dirty || df.ClockOut != value
		df.ClockOut = value
	default:
		return fmt.Errorf("unknown flag kind %q", kind)
	}
	if !dirty {
		return nil
	}
	df.UserID = userID
	df.Date = day.Format(model.DateLayout)
	df.UpdatedAt = c.now().UTC()
	return SaveDay(c.base, userID, day, df)
}

// ClearDay removes every flag of userID for the given date.
func (c *Cache) ClearDay(userID string, day time.Time) error {
	path := dayFilePath(c.base, userID, day)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage error removing %s: %w", path, err)
	}
	return nil
}
