// Package ballot owns a purchased vote budget and its allocation across
// nominees. Every mutation keeps allocated + remaining equal to purchased.
package ballot

import (
	"encoding/json"
	"errors"
	"fmt"

	dErrors "awardvote/pkg/domain-errors"
)

var (
	ErrBudgetExhausted = errors.New("no votes remaining")
	ErrNotAllocated    = errors.New("nominee has no allocated votes in category")
	ErrInvalidBudget   = errors.New("purchased votes must be positive")
)

// Allocation maps a category ID to the nominee IDs voted for in it. Each
// occurrence is one spent vote.
type Allocation map[string][]string

// Clone returns a deep copy.
func (a Allocation) Clone() Allocation {
	out := make(Allocation, len(a))
	for cat, noms := range a {
		if len(noms) == 0 {
			continue
		}
		out[cat] = append([]string(nil), noms...)
	}
	return out
}

// Total is the number of votes across all categories.
func (a Allocation) Total() int {
	n := 0
	for _, noms := range a {
		n += len(noms)
	}
	return n
}

// Result reports the state after a successful mutation.
type Result struct {
	Remaining    int `json:"votes_remaining"`
	NomineeCount int `json:"nominee_count"`
}

// Ballot is not safe for concurrent use; the session store serializes access.
type Ballot struct {
	purchased  int
	remaining  int
	allocation Allocation
}

func New(purchased int) (*Ballot, error) {
	if purchased <= 0 {
		return nil, ErrInvalidBudget
	}
	return &Ballot{purchased: purchased, remaining: purchased, allocation: Allocation{}}, nil
}

// Allocate spends one vote on nomineeID in categoryID. The caller has already
// checked that the nominee belongs to the category.
func (b *Ballot) Allocate(categoryID, nomineeID string) (Result, error) {
	if b.remaining <= 0 {
		return Result{}, ErrBudgetExhausted
	}
	b.allocation[categoryID] = append(b.allocation[categoryID], nomineeID)
	b.remaining--
	return Result{Remaining: b.remaining, NomineeCount: b.CountFor(categoryID, nomineeID)}, nil
}

// Deallocate returns one vote previously spent on nomineeID in categoryID.
func (b *Ballot) Deallocate(categoryID, nomineeID string) (Result, error) {
	noms := b.allocation[categoryID]
	idx := -1
	for i, n := range noms {
		if n == nomineeID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Result{}, ErrNotAllocated
	}
	noms = append(noms[:idx:idx], noms[idx+1:]...)
	if len(noms) == 0 {
		delete(b.allocation, categoryID)
	} else {
		b.allocation[categoryID] = noms
	}
	b.remaining++
	return Result{Remaining: b.remaining, NomineeCount: b.CountFor(categoryID, nomineeID)}, nil
}

func (b *Ballot) CountFor(categoryID, nomineeID string) int {
	n := 0
	for _, id := range b.allocation[categoryID] {
		if id == nomineeID {
			n++
		}
	}
	return n
}

func (b *Ballot) TotalAllocated() int {
	return b.allocation.Total()
}

func (b *Ballot) Remaining() int {
	return b.remaining
}

func (b *Ballot) Purchased() int {
	return b.purchased
}

// Allocation returns a copy the caller may keep.
func (b *Ballot) Allocation() Allocation {
	return b.allocation.Clone()
}

// CheckInvariant reports a corrupted budget.
func (b *Ballot) CheckInvariant() error {
	total := b.TotalAllocated()
	if b.remaining < 0 || total+b.remaining != b.purchased {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("allocated %d + remaining %d != purchased %d", total, b.remaining, b.purchased))
	}
	return nil
}

type ballotJSON struct {
	Purchased  int        `json:"purchased"`
	Remaining  int        `json:"remaining"`
	Allocation Allocation `json:"allocation"`
}

func (b *Ballot) MarshalJSON() ([]byte, error) {
	return json.Marshal(ballotJSON{Purchased: b.purchased, Remaining: b.remaining, Allocation: b.allocation})
}

// UnmarshalJSON rejects a payload whose counts do not add up.
func (b *Ballot) UnmarshalJSON(data []byte) error {
	var raw ballotJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Allocation == nil {
		raw.Allocation = Allocation{}
	}
	decoded := Ballot{purchased: raw.Purchased, remaining: raw.Remaining, allocation: raw.Allocation}
	if err := decoded.CheckInvariant(); err != nil {
		return err
	}
	*b = decoded
	return nil
}
