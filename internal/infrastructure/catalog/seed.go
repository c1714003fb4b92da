// ABOUTME: Imports configured stations into a catalog
// ABOUTME: Titles already present are left untouched
package catalog

import (
	"context"
	"fmt"

	"github.com/harper/radiod/internal/domain"
)

type Entry struct {
	Title   string
	URL     string
	Sources []string
}

// Seed creates every entry whose title is not yet in c and returns how many
// were added.
func Seed(ctx context.Context, c domain.Catalog, entries []Entry) (int, error) {
	existing, err := c.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stations: %w", err)
	}

	titles := make(map[string]bool, len(existing))
	for _, st := range existing {
		titles[st.Title] = true
	}

	added := 0
	for _, e := range entries {
		if titles[e.Title] {
			continue
		}
		if _, err := c.Create(ctx, e.Title, e.URL, e.Sources); err != nil {
			return added, fmt.Errorf("create %q: %w", e.Title, err)
		}
		titles[e.Title] = true
		added++
	}
	return added, nil
}
