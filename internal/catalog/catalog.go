// Package catalog loads categories with their nominees from the record store.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"awardvote/internal/recordstore"
)

// ErrCatalogUnavailable marks a failed category or nominee fetch. Voting
// stays blocked until a reload succeeds.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

type Category struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Nominees []Nominee `json:"nominees"`
}

type Nominee struct {
	ID           string `json:"id"`
	CategoryID   string `json:"category_id"`
	Name         string `json:"name"`
	Image        string `json:"image,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	Votes        int    `json:"votes"`
	CollectionID string `json:"-"`
}

// Catalog is a loaded snapshot of the voting options.
type Catalog struct {
	Categories []Category `json:"categories"`
	index      map[string]map[string]struct{}
}

// New indexes categories for pairing lookups.
func New(categories []Category) *Catalog {
	c := &Catalog{Categories: categories, index: make(map[string]map[string]struct{}, len(categories))}
	for _, cat := range categories {
		noms := make(map[string]struct{}, len(cat.Nominees))
		for _, n := range cat.Nominees {
			noms[n.ID] = struct{}{}
		}
		c.index[cat.ID] = noms
	}
	return c
}

// Contains reports whether nomineeID belongs to categoryID.
func (c *Catalog) Contains(categoryID, nomineeID string) bool {
	if c == nil {
		return false
	}
	noms, ok := c.index[categoryID]
	if !ok {
		return false
	}
	_, ok = noms[nomineeID]
	return ok
}

// NomineeCount is the number of nominees across all categories.
func (c *Catalog) NomineeCount() int {
	n := 0
	for _, cat := range c.Categories {
		n += len(cat.Nominees)
	}
	return n
}

// Source is the subset of the record store client the loader reads.
type Source interface {
	ListCategories(ctx context.Context) ([]recordstore.CategoryRecord, error)
	ListNominees(ctx context.Context, categoryID string, sortByVotes bool) ([]recordstore.NomineeRecord, error)
	ImageURL(collectionID, recordID, filename string) string
}

// Loader fetches categories and then their nominees concurrently.
type Loader struct {
	source Source
}

func NewLoader(source Source) *Loader {
	return &Loader{source: source}
}

// Load fetches the full catalog. sortByVotes asks the store for nominees in
// descending vote order.
func (l *Loader) Load(ctx context.Context, sortByVotes bool) (*Catalog, error) {
	cats, err := l.source.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list categories: %w", ErrCatalogUnavailable, err)
	}

	out := make([]Category, len(cats))
	g, gctx := errgroup.WithContext(ctx)
	for i, cat := range cats {
		g.Go(func() error {
			noms, err := l.source.ListNominees(gctx, cat.ID, sortByVotes)
			if err != nil {
				return fmt.Errorf("%w: list nominees for %s: %w", ErrCatalogUnavailable, cat.ID, err)
			}
			out[i] = Category{ID: cat.ID, Name: cat.Name, Nominees: l.convert(cat.ID, noms)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return New(out), nil
}

func (l *Loader) convert(categoryID string, recs []recordstore.NomineeRecord) []Nominee {
	noms := make([]Nominee, 0, len(recs))
	for _, r := range recs {
		// Records filed under a different category are dropped so a pairing
		// can only ever be made under its own category.
		if r.Category != "" && r.Category != categoryID {
			continue
		}
		noms = append(noms, Nominee{
			ID:           r.ID,
			CategoryID:   categoryID,
			Name:         r.Name,
			Image:        r.Image,
			ImageURL:     l.source.ImageURL(r.CollectionID, r.ID, r.Image),
			Votes:        max(r.Votes, 0),
			CollectionID: r.CollectionID,
		})
	}
	return noms
}
