package recordstore

// Collections names the three collections the gateway touches.
type Collections struct {
	Categories  string
	Nominees    string
	VoteRecords string
}

// CategoryRecord is a category as stored; created and deleted only by administrators.
type CategoryRecord struct {
	ID           string `json:"id"`
	CollectionID string `json:"collectionId,omitempty"`
	Name         string `json:"name"`
}

// NomineeRecord is a nominee with its persisted tally.
type NomineeRecord struct {
	ID           string `json:"id"`
	CollectionID string `json:"collectionId,omitempty"`
	Category     string `json:"category"`
	Name         string `json:"name"`
	Image        string `json:"image,omitempty"`
	Votes        int    `json:"votes"`
}

// VoteRecord is one persisted vote. Retries are only duplicate-free when the
// vote records collection declares a unique index on vote_key; without it the
// store accepts a second copy and no conflict is ever reported.
type VoteRecord struct {
	Nominee    string `json:"nominee"`
	Category   string `json:"category"`
	PhoneHash  string `json:"phone_hash"`
	PaymentRef string `json:"payment_ref"`
	VoteKey    string `json:"vote_key,omitempty"`
}

type listResponse[T any] struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	TotalItems int `json:"totalItems"`
	Items      []T `json:"items"`
}

type votesPatch struct {
	Votes int `json:"votes"`
}
