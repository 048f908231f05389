package referee

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-json"
)

//go:embed nag_messages.json
var defaultNagMessages []byte

type templateFile struct {
	Data []string `json:"data"`
}

// LoadTemplates reads nag templates from a JSON file shaped like
// {"data": ["..."]}. An empty path loads the built-in set.
func LoadTemplates(path string) ([]string, error) {
	raw := defaultNagMessages
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read nag templates: %w", err)
		}
		raw = b
	}

	var f templateFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("decode nag templates: %w", err)
	}
	if len(f.Data) == 0 {
		return nil, errors.New("nag templates: no messages")
	}
	return f.Data, nil
}

// renderNag fills the {since} and {randomNumber} placeholders.
func renderNag(tmpl, since string, random float64) string {
	out := strings.ReplaceAll(tmpl, "{since}", since)
	return strings.ReplaceAll(out, "{randomNumber}", strconv.FormatFloat(random, 'f', -1, 64))
}

// Under this much time, relative phrases read "a few seconds".
const fewSeconds = 45 * time.Second

// elapsed phrases the time between then and now without a suffix, e.g. "2 hours".
func elapsed(then, now time.Time) string {
	if d := now.Sub(then); d >= 0 && d < fewSeconds {
		return "a few seconds"
	}
	return strings.TrimSpace(humanize.RelTime(then, now, "", ""))
}

// ago phrases then relative to now, e.g. "2 hours ago".
func ago(then, now time.Time) string {
	if d := now.Sub(then); d >= 0 && d < fewSeconds {
		return "a few seconds ago"
	}
	return humanize.RelTime(then, now, "ago", "from now")
}
