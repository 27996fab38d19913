package tgsink

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrBadDestinations is returned when the configured destination list has an
// unsupported shape. Configuration errors surface at construction, never at
// delivery time.
var ErrBadDestinations = errors.New("tgsink: destinations must be a string, an integer, or a list of those")

// ParseDestinations normalizes the configured destination identifiers.
//
// Accepted shapes:
//   - nil: no destinations
//   - string: semicolon-separated list (typically environment-supplied)
//   - integer or float: a single numeric chat id (typical for JSON/YAML config)
//   - []string or []any of the above scalars
func ParseDestinations(v any) ([]string, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		var out []string
		for _, part := range strings.Split(x, ";") {
			part = strings.TrimSpace(part)
			if part != "" {
				out = append(out, part)
			}
		}
		return out, nil
	case int:
		return []string{strconv.Itoa(x)}, nil
	case int64:
		return []string{strconv.FormatInt(x, 10)}, nil
	case float64:
		// JSON numbers decode as float64; chat ids are integral.
		return []string{strconv.FormatInt(int64(x), 10)}, nil
	case []string:
		var out []string
		for _, s := range x {
			ids, err := ParseDestinations(s)
			if err != nil {
				return nil, err
			}
			out = append(out, ids...)
		}
		return out, nil
	case []any:
		var out []string
		for _, item := range x {
			ids, err := ParseDestinations(item)
			if err != nil {
				return nil, err
			}
			out = append(out, ids...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrBadDestinations, v)
	}
}

// Destination is one addressable delivery target. Identifiers may carry a
// "label:" prefix (used for hint routing, stripped from the wire id) and an
// "@sub" suffix selecting a forum topic / message thread.
type Destination struct {
	Raw      string
	Label    string
	ChatID   string
	ThreadID string
}

func parseDestination(raw string) Destination {
	d := Destination{Raw: raw}

	id := raw
	if i := strings.Index(id, ":"); i >= 0 {
		d.Label = id[:i]
		id = id[strings.LastIndex(id, ":")+1:]
	}
	if chat, thread, ok := strings.Cut(id, "@"); ok {
		d.ChatID, d.ThreadID = chat, thread
	} else {
		d.ChatID = id
	}
	return d
}

// dest pairs a Destination with its owned cache and last-response feedback.
// Mutated only by the delivery engine, under the sink lock.
type dest struct {
	Destination
	cache    *queue
	feedback map[string]any
}
