// Package results turns live nominee tallies into ranked standings.
package results

import (
	"cmp"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"awardvote/internal/catalog"
)

// Snapshot is one complete view of the standings. A refresh replaces it
// wholesale.
type Snapshot struct {
	Categories        []CategoryResult `json:"categories"`
	TotalVotes        int              `json:"total_votes"`
	TotalVotesDisplay string           `json:"total_votes_display"`
	TotalNominees     int              `json:"total_nominees"`
	RefreshedAt       time.Time        `json:"refreshed_at"`
	Sequence          uint64           `json:"sequence"`
}

type CategoryResult struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	TotalVotes        int             `json:"total_votes"`
	TotalVotesDisplay string          `json:"total_votes_display"`
	Nominees          []NomineeResult `json:"nominees"`
}

type NomineeResult struct {
	Rank       int     `json:"rank"`
	Position   string  `json:"position"`
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Votes      int     `json:"votes"`
	Percentage float64 `json:"percentage"`
	ImageURL   string  `json:"image_url,omitempty"`
}

var hundred = decimal.NewFromInt(100)

// Aggregate ranks nominees within each category by votes, ties going to the
// lower nominee ID, and computes shares rounded to one decimal place.
func Aggregate(cat *catalog.Catalog, refreshedAt time.Time) Snapshot {
	snap := Snapshot{RefreshedAt: refreshedAt, Categories: []CategoryResult{}}
	if cat == nil {
		snap.TotalVotesDisplay = humanize.Comma(0)
		return snap
	}

	for _, c := range cat.Categories {
		cr := aggregateCategory(c)
		snap.Categories = append(snap.Categories, cr)
		snap.TotalVotes += cr.TotalVotes
		snap.TotalNominees += len(cr.Nominees)
	}
	snap.TotalVotesDisplay = humanize.Comma(int64(snap.TotalVotes))
	return snap
}

func aggregateCategory(c catalog.Category) CategoryResult {
	noms := slices.Clone(c.Nominees)
	slices.SortStableFunc(noms, func(a, b catalog.Nominee) int {
		if n := cmp.Compare(votesOf(b), votesOf(a)); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})

	total := 0
	for _, n := range noms {
		total += votesOf(n)
	}

	out := CategoryResult{
		ID:                c.ID,
		Name:              c.Name,
		TotalVotes:        total,
		TotalVotesDisplay: humanize.Comma(int64(total)),
		Nominees:          make([]NomineeResult, 0, len(noms)),
	}
	for i, n := range noms {
		out.Nominees = append(out.Nominees, NomineeResult{
			Rank:       i + 1,
			Position:   humanize.Ordinal(i + 1),
			ID:         n.ID,
			Name:       n.Name,
			Votes:      votesOf(n),
			Percentage: Percentage(votesOf(n), total),
			ImageURL:   n.ImageURL,
		})
	}
	return out
}

// Percentage is votes/total as a percentage rounded to one decimal, or 0 when
// the category has no votes.
func Percentage(votes, total int) float64 {
	if total <= 0 {
		return 0
	}
	return decimal.NewFromInt(int64(votes)).
		Mul(hundred).
		DivRound(decimal.NewFromInt(int64(total)), 1).
		InexactFloat64()
}

// Missing tallies count as zero; a negative tally is treated the same way.
func votesOf(n catalog.Nominee) int {
	return max(n.Votes, 0)
}
