// Package recordstoretest provides an in-memory record store served over
// httptest, used by package and handler tests.
package recordstoretest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"

	"awardvote/internal/recordstore"
)

var Collections = recordstore.Collections{
	Categories:  "vote_cat",
	Nominees:    "vote_noms",
	VoteRecords: "nom_votes",
}

var categoryFilter = regexp.MustCompile(`^\(category='([^']*)'\)$`)

// Server is a fake record store. Zero-valued knobs mean "behave normally".
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	categories []recordstore.CategoryRecord
	nominees   map[string]*recordstore.NomineeRecord
	order      []string
	votes      []recordstore.VoteRecord
	voteKeys   map[string]struct{}

	// failCreates fails the next n vote-record creates with 500.
	failCreates int
	// failCreateNominee fails every create for this nominee ID.
	failCreateNominee string
	// failUpdateNominee fails tally updates for this nominee ID.
	failUpdateNominee string
	down              bool

	creates int
	updates int
}

// New starts a fake server. Call Close when done.
func New() *Server {
	s := &Server{
		nominees: make(map[string]*recordstore.NomineeRecord),
		voteKeys: make(map[string]struct{}),
	}
	r := chi.NewRouter()
	r.Get("/api/collections/{collection}/records", s.list)
	r.Post("/api/collections/{collection}/records", s.create)
	r.Get("/api/collections/{collection}/records/{id}", s.get)
	r.Patch("/api/collections/{collection}/records/{id}", s.patch)
	s.Server = httptest.NewServer(s.guard(r))
	return s
}

// AddCategory seeds a category.
func (s *Server) AddCategory(id, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories = append(s.categories, recordstore.CategoryRecord{ID: id, CollectionID: "col_cat", Name: name})
}

// AddNominee seeds a nominee with an initial tally.
func (s *Server) AddNominee(id, categoryID, name string, votes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nominees[id] = &recordstore.NomineeRecord{
		ID: id, CollectionID: "col_noms", Category: categoryID, Name: name, Image: id + ".png", Votes: votes,
	}
	s.order = append(s.order, id)
}

// SetDown makes every request answer 503.
func (s *Server) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func (s *Server) FailNextCreates(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCreates = n
}

func (s *Server) FailCreatesFor(nomineeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCreateNominee = nomineeID
}

func (s *Server) FailUpdatesFor(nomineeID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failUpdateNominee = nomineeID
}

// Tally returns a nominee's stored vote count.
func (s *Server) Tally(nomineeID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.nominees[nomineeID]; ok {
		return n.Votes
	}
	return 0
}

// VoteRecords returns a copy of the stored vote records.
func (s *Server) VoteRecords() []recordstore.VoteRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordstore.VoteRecord(nil), s.votes...)
}

// Creates counts create attempts, including failed ones.
func (s *Server) Creates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

func (s *Server) Updates() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updates
}

func (s *Server) guard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		down := s.down
		s.mu.Unlock()
		if down {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"message": "unavailable"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch chi.URLParam(r, "collection") {
	case Collections.Categories:
		writeList(w, append([]recordstore.CategoryRecord(nil), s.categories...))
	case Collections.Nominees:
		var catID string
		if f := r.URL.Query().Get("filter"); f != "" {
			m := categoryFilter.FindStringSubmatch(f)
			if m == nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad filter"})
				return
			}
			catID = m[1]
		}
		items := make([]recordstore.NomineeRecord, 0)
		for _, id := range s.order {
			n := s.nominees[id]
			if catID == "" || n.Category == catID {
				items = append(items, *n)
			}
		}
		if r.URL.Query().Get("sort") == "-votes" {
			sort.SliceStable(items, func(i, j int) bool { return items[i].Votes > items[j].Votes })
		}
		writeList(w, items)
	case Collections.VoteRecords:
		writeList(w, append([]recordstore.VoteRecord(nil), s.votes...))
	default:
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "missing collection"})
	}
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chi.URLParam(r, "collection") != Collections.Nominees {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "missing collection"})
		return
	}
	n, ok := s.nominees[chi.URLParam(r, "id")]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "record not found"})
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) patch(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := chi.URLParam(r, "id")
	n, ok := s.nominees[id]
	if chi.URLParam(r, "collection") != Collections.Nominees || !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "record not found"})
		return
	}
	if id == s.failUpdateNominee {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "update failed"})
		return
	}
	var body struct {
		Votes *int `json:"votes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Votes == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	s.updates++
	n.Votes = *body.Votes
	writeJSON(w, http.StatusOK, n)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chi.URLParam(r, "collection") != Collections.VoteRecords {
		writeJSON(w, http.StatusForbidden, map[string]string{"message": "create not allowed"})
		return
	}
	var rec recordstore.VoteRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "invalid body"})
		return
	}
	s.creates++
	if s.failCreates > 0 {
		s.failCreates--
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "create failed"})
		return
	}
	if rec.Nominee == s.failCreateNominee && rec.Nominee != "" {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "create failed"})
		return
	}
	if rec.VoteKey != "" {
		if _, dup := s.voteKeys[rec.VoteKey]; dup {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"message": "Failed to create record.",
				"data": map[string]any{
					"vote_key": map[string]string{"code": "validation_not_unique", "message": "Value must be unique."},
				},
			})
			return
		}
		s.voteKeys[rec.VoteKey] = struct{}{}
	}
	s.votes = append(s.votes, rec)
	writeJSON(w, http.StatusOK, map[string]string{"id": fmt.Sprintf("vote%d", len(s.votes))})
}

func writeList[T any](w http.ResponseWriter, items []T) {
	writeJSON(w, http.StatusOK, map[string]any{
		"page":       1,
		"perPage":    500,
		"totalItems": len(items),
		"items":      items,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ImagePrefix is the file URL prefix a client built against this server uses.
func (s *Server) ImagePrefix() string {
	return strings.TrimRight(s.URL, "/") + "/api/files/"
}
