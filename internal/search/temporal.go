package search

import (
	"strings"
	"time"

	"github.com/rkm/stac-catalog/internal/catalog"
)

// Window is an acquisition time filter. Both bounds are inclusive and either
// may be open.
type Window struct {
	Start *time.Time
	Stop  *time.Time
}

// IsZero reports whether the window is open on both ends.
func (w Window) IsZero() bool {
	return w.Start == nil && w.Stop == nil
}

// Overlaps reports whether iv shares at least one instant with the window.
func (w Window) Overlaps(iv catalog.Interval) bool {
	if w.Start != nil && iv.End.Before(*w.Start) {
		return false
	}
	if w.Stop != nil && iv.Start.After(*w.Stop) {
		return false
	}
	return true
}

// ParseWindow builds a window from start_time and stop_time values. Empty
// strings leave the bound open.
func ParseWindow(start, stop string) (Window, error) {
	var w Window
	if start != "" {
		t, err := catalog.ParseTimestamp(start)
		if err != nil {
			return Window{}, invalid("start_time", "%v", err)
		}
		w.Start = &t
	}
	if stop != "" {
		t, err := catalog.ParseTimestamp(stop)
		if err != nil {
			return Window{}, invalid("stop_time", "%v", err)
		}
		w.Stop = &t
	}
	if w.Start != nil && w.Stop != nil && w.Start.After(*w.Stop) {
		return Window{}, invalid("start_time", "start_time (%s) is after stop_time (%s)",
			catalog.FormatTimestamp(*w.Start), catalog.FormatTimestamp(*w.Stop))
	}
	return w, nil
}

// ParseDatetime reads a STAC datetime parameter: a single instant, a closed
// interval "a/b", or a half-open one using ".." or an empty side.
func ParseDatetime(dt string) (Window, error) {
	dt = strings.TrimSpace(dt)
	if dt == "" {
		return Window{}, invalid("datetime", "datetime cannot be empty")
	}
	if !strings.Contains(dt, "/") {
		if dt == ".." {
			return Window{}, nil
		}
		t, err := catalog.ParseTimestamp(dt)
		if err != nil {
			return Window{}, invalid("datetime", "%v", err)
		}
		return Window{Start: &t, Stop: &t}, nil
	}

	parts := strings.Split(dt, "/")
	if len(parts) != 2 {
		return Window{}, invalid("datetime", "expected 'start/end', got %q", dt)
	}
	var w Window
	for i, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || part == ".." {
			continue
		}
		t, err := catalog.ParseTimestamp(part)
		if err != nil {
			return Window{}, invalid("datetime", "%v", err)
		}
		if i == 0 {
			w.Start = &t
		} else {
			w.Stop = &t
		}
	}
	if w.Start != nil && w.Stop != nil && w.Start.After(*w.Stop) {
		return Window{}, invalid("datetime", "interval start is after its end")
	}
	return w, nil
}
