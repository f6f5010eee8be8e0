// Package cache persists the bounded recent-query list in client-local
// storage. The file is keyed by machine, not by account, matching the
// observed behavior of the original design.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/firi-app/firi/internal/research"
)

// RecentQueries reads and writes the recent-query file.
type RecentQueries struct {
	path string
}

func NewRecentQueries(path string) *RecentQueries { return &RecentQueries{path: path} }

// DefaultPath places the file under the user config dir.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "firi", "recent_queries.json")
}

// Load returns the stored list, or an empty list if the file does not exist
// yet. A corrupt file is treated as empty rather than fatal.
func (c *RecentQueries) Load() []research.RecentQuery {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return nil
	}
	var list []research.RecentQuery
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil
	}
	if len(list) > research.MaxRecentQueries {
		list = list[:research.MaxRecentQueries]
	}
	return list
}

// Record pushes topic onto the stored list and writes it back, returning the
// new list. Local storage access is synchronous.
func (c *RecentQueries) Record(topic string, now time.Time) ([]research.RecentQuery, error) {
	list := research.PushRecent(c.Load(), topic, now)
	if err := c.save(list); err != nil {
		return list, err
	}
	return list, nil
}

func (c *RecentQueries) save(list []research.RecentQuery) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return errors.Wrap(err, "create cache dir")
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return errors.Wrap(err, "encode recent queries")
	}
	return errors.Wrap(os.WriteFile(c.path, raw, 0o600), "write recent queries")
}
