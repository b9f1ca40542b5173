// Package refdata caches slow-changing reference data - tutorial articles
// and the bot command list - in memory and serves fuzzy tutorial search for
// realtime clients. Data is pulled from a Source on a fixed interval; where
// it actually lives (database, bundled JSON) is the source's concern.
package refdata

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog"
)

// Tutorial is one help article.
type Tutorial struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Link        string   `json:"link"`
	Tags        []string `json:"tags"`
}

// Command is one bot command descriptor.
type Command struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Usage       string `json:"usage,omitempty"`
}

// Source provides the authoritative reference data.
type Source interface {
	Tutorials(ctx context.Context) ([]Tutorial, error)
	Commands(ctx context.Context) ([]Command, error)
}

// Cache holds the latest reference data snapshot. Reads never block on a
// refresh; a failed refresh keeps the previous snapshot.
type Cache struct {
	source Source
	log    zerolog.Logger

	mu        sync.RWMutex
	tutorials []Tutorial
	commands  []Command
}

// NewCache creates a cache over source. Call Refresh (or Run) to populate it.
func NewCache(source Source, log zerolog.Logger) *Cache {
	return &Cache{
		source: source,
		log:    log.With().Str("component", "refdata").Logger(),
	}
}

// Refresh pulls a fresh snapshot from the source.
func (c *Cache) Refresh(ctx context.Context) error {
	tutorials, err := c.source.Tutorials(ctx)
	if err != nil {
		return err
	}
	commands, err := c.source.Commands(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.tutorials = tutorials
	c.commands = commands
	c.mu.Unlock()
	return nil
}

// Run refreshes immediately and then on every interval tick until ctx is
// cancelled. Refresh failures are logged and retried on the next tick.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	if err := c.Refresh(ctx); err != nil {
		c.log.Error().Err(err).Msg("initial reference data refresh failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Refresh(ctx); err != nil {
				c.log.Error().Err(err).Msg("reference data refresh failed")
			}
		}
	}
}

// Tutorials returns the current tutorial snapshot.
func (c *Cache) Tutorials() []Tutorial {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tutorials
}

// TutorialByLink returns the tutorial with the given link, if any.
func (c *Cache) TutorialByLink(link string) (Tutorial, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.tutorials {
		if t.Link == link {
			return t, true
		}
	}
	return Tutorial{}, false
}

// Commands returns the current command snapshot.
func (c *Cache) Commands() []Command {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.commands
}

// Search matches query against tutorial titles, descriptions and tags,
// case- and diacritic-insensitively, best matches first.
func (c *Cache) Search(query string) []Tutorial {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil
	}

	c.mu.RLock()
	snapshot := c.tutorials
	c.mu.RUnlock()

	type scored struct {
		tutorial Tutorial
		rank     int
	}
	var matches []scored
	for _, t := range snapshot {
		if rank, ok := tutorialRank(query, t); ok {
			matches = append(matches, scored{tutorial: t, rank: rank})
		}
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].rank < matches[j].rank })

	results := make([]Tutorial, len(matches))
	for i, m := range matches {
		results[i] = m.tutorial
	}
	return results
}

// tutorialRank returns the best (lowest) match rank of query against the
// tutorial's searchable strings, or false when nothing matches.
func tutorialRank(query string, t Tutorial) (int, bool) {
	best := -1
	consider := func(candidate string) {
		rank := fuzzy.RankMatchNormalizedFold(query, candidate)
		if rank >= 0 && (best < 0 || rank < best) {
			best = rank
		}
	}

	consider(t.Title)
	consider(t.Description)
	for _, tag := range t.Tags {
		consider(tag)
	}
	return best, best >= 0
}
