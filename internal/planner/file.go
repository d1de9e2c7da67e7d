package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"freeslot/internal/ics"
	"freeslot/internal/models"
)

// FileSource reads events from a local .ics or .json file. The JSON form is an
// array of models.Event.
type FileSource struct {
	path string
}

// NewFileSource returns a source reading path on every call.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Name identifies the file.
func (s *FileSource) Name() string {
	return "file-" + filepath.Base(s.path)
}

// EventsBetween returns every event in the file; days are clipped by the planner.
func (s *FileSource) EventsBetween(_ context.Context, start, _ time.Time, _ []string) ([]*models.Event, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open events file: %w", err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(s.path)) {
	case ".ics", ".ical", ".ifb":
		return ics.Decode(f, start.Location(), s.Name())
	case ".json":
		var events []*models.Event
		if err := json.NewDecoder(f).Decode(&events); err != nil {
			return nil, fmt.Errorf("failed to decode events file: %w", err)
		}
		for _, ev := range events {
			if ev != nil && ev.Source == "" {
				ev.Source = s.Name()
			}
		}
		return events, nil
	default:
		return nil, fmt.Errorf("unsupported events file %q: want .ics or .json", s.path)
	}
}
