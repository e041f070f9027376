package submission

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"awardvote/internal/ballot"
)

// voteKeyNamespace scopes UUIDv5 vote keys to this service.
var voteKeyNamespace = uuid.MustParse("6f1c9b0e-58b5-4d0a-9d59-3f0a2c7e8a41")

// Vote is one allocated vote.
type Vote struct {
	CategoryID string
	NomineeID  string
	// Occurrence numbers repeated votes for the same pair, starting at 0.
	Occurrence int
}

// Flatten expands an allocation into one Vote per spent vote, in a canonical
// order that does not depend on how the allocation was built.
func Flatten(a ballot.Allocation) []Vote {
	type pair struct{ cat, nom string }
	counts := make(map[pair]int)
	for cat, noms := range a {
		for _, nom := range noms {
			counts[pair{cat, nom}]++
		}
	}
	pairs := make([]pair, 0, len(counts))
	for p := range counts {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].cat != pairs[j].cat {
			return pairs[i].cat < pairs[j].cat
		}
		return pairs[i].nom < pairs[j].nom
	})

	votes := make([]Vote, 0, a.Total())
	for _, p := range pairs {
		for i := range counts[p] {
			votes = append(votes, Vote{CategoryID: p.cat, NomineeID: p.nom, Occurrence: i})
		}
	}
	return votes
}

// CountByNominee is the per-nominee tally increment for a set of votes.
func CountByNominee(votes []Vote) map[string]int {
	out := make(map[string]int)
	for _, v := range votes {
		out[v.NomineeID]++
	}
	return out
}

// VoteKey is stable for a given payment reference and vote, so a retried
// submission produces the same keys.
func VoteKey(paymentRef string, v Vote) string {
	name := strings.Join([]string{paymentRef, v.CategoryID, v.NomineeID, strconv.Itoa(v.Occurrence)}, "\x1f")
	return uuid.NewSHA1(voteKeyNamespace, []byte(name)).String()
}

// Fingerprint identifies the multiset of votes; two allocations with the same
// per-pair counts share a fingerprint.
func Fingerprint(votes []Vote) string {
	h := sha256.New()
	for _, v := range votes {
		h.Write([]byte(v.CategoryID))
		h.Write([]byte{0x1f})
		h.Write([]byte(v.NomineeID))
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}
