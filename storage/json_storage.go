package storage

import (
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"voting-ledger/models"
)

const snapshotFile = "records.json"

var (
	ErrNotFound     = errors.New("storage: not found")
	ErrAlreadyVoted = errors.New("storage: voter already voted in this election")
	ErrDuplicate    = errors.New("storage: duplicate record")
)

// snapshot is the file layout of records.json
type snapshot struct {
	Elections  []models.Election   `json:"elections"`
	Candidates []models.Candidate  `json:"candidates"`
	Voters     []models.Voter      `json:"voters"`
	Votes      []models.VoteRecord `json:"votes"`
}

type voteKey struct {
	voterID    int64
	electionID int64
}

// RecordStore holds the relational records around the ledger: elections,
// candidates, voters and the vote records that cross-reference sealed
// entries. When basePath is set every mutation is mirrored to records.json;
// a mutation whose snapshot cannot be written is rolled back.
type RecordStore struct {
	basePath string
	mu       sync.RWMutex

	elections  map[int64]*models.Election
	candidates map[int64]*models.Candidate
	voters     map[int64]*models.Voter
	votes      map[string]*models.VoteRecord
	voteIndex  map[voteKey]string
	voterCodes map[string]int64

	nextElectionID  int64
	nextCandidateID int64
	nextVoterID     int64
}

// NewRecordStore returns an empty store. An empty basePath keeps records in
// memory only.
func NewRecordStore(basePath string) (*RecordStore, error) {
	if basePath != "" {
		if err := ensureDir(basePath); err != nil {
			return nil, err
		}
	}

	return &RecordStore{
		basePath:   basePath,
		elections:  make(map[int64]*models.Election),
		candidates: make(map[int64]*models.Candidate),
		voters:     make(map[int64]*models.Voter),
		votes:      make(map[string]*models.VoteRecord),
		voteIndex:  make(map[voteKey]string),
		voterCodes: make(map[string]int64),
	}, nil
}

// CreateElection stores e under a freshly allocated ID
func (s *RecordStore) CreateElection(e models.Election) (*models.Election, error) {
	if e.Title == "" {
		return nil, errors.New("election title is required")
	}
	if e.EndDate.Before(e.StartDate) {
		return nil, errors.Errorf("election %q ends before it starts", e.Title)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextElectionID++
	e.ID = s.nextElectionID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.elections[e.ID] = &e

	if err := s.persistLocked(); err != nil {
		delete(s.elections, e.ID)
		s.nextElectionID--
		return nil, err
	}
	out := e
	return &out, nil
}

func (s *RecordStore) GetElection(id int64) (*models.Election, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.elections[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "election %d", id)
	}
	out := *e
	return &out, nil
}

// ListElections returns elections newest first; activeOnly drops inactive ones
func (s *RecordStore) ListElections(activeOnly bool) []models.Election {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Election, 0, len(s.elections))
	for _, e := range s.elections {
		if activeOnly && !e.IsActive {
			continue
		}
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// AddCandidate attaches c to an existing election
func (s *RecordStore) AddCandidate(c models.Candidate) (*models.Candidate, error) {
	if c.Name == "" {
		return nil, errors.New("candidate name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.elections[c.ElectionID]; !ok {
		return nil, errors.Wrapf(ErrNotFound, "election %d", c.ElectionID)
	}

	s.nextCandidateID++
	c.ID = s.nextCandidateID
	s.candidates[c.ID] = &c

	if err := s.persistLocked(); err != nil {
		delete(s.candidates, c.ID)
		s.nextCandidateID--
		return nil, err
	}
	out := c
	return &out, nil
}

func (s *RecordStore) GetCandidate(id int64) (*models.Candidate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.candidates[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "candidate %d", id)
	}
	out := *c
	return &out, nil
}

// ListCandidates returns the candidates of an election ordered by name
func (s *RecordStore) ListCandidates(electionID int64) []models.Candidate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Candidate
	for _, c := range s.candidates {
		if c.ElectionID == electionID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RegisterVoter stores v; voter codes are unique
func (s *RecordStore) RegisterVoter(v models.Voter) (*models.Voter, error) {
	if v.VoterCode == "" {
		return nil, errors.New("voter code is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.voterCodes[v.VoterCode]; exists {
		return nil, errors.Wrapf(ErrDuplicate, "voter code %s", v.VoterCode)
	}

	s.nextVoterID++
	v.ID = s.nextVoterID
	if v.RegisteredAt.IsZero() {
		v.RegisteredAt = time.Now().UTC()
	}
	s.voters[v.ID] = &v
	s.voterCodes[v.VoterCode] = v.ID

	if err := s.persistLocked(); err != nil {
		delete(s.voters, v.ID)
		delete(s.voterCodes, v.VoterCode)
		s.nextVoterID--
		return nil, err
	}
	out := v
	return &out, nil
}

func (s *RecordStore) GetVoter(id int64) (*models.Voter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.voters[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "voter %d", id)
	}
	out := *v
	return &out, nil
}

func (s *RecordStore) GetVoterByCode(code string) (*models.Voter, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.voterCodes[code]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "voter code %s", code)
	}
	out := *s.voters[id]
	return &out, nil
}

func (s *RecordStore) ListVoters() []models.Voter {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Voter, 0, len(s.voters))
	for _, v := range s.voters {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *RecordStore) MarkVoted(voterID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.voters[voterID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "voter %d", voterID)
	}
	previous := v.HasVoted
	v.HasVoted = true
	if err := s.persistLocked(); err != nil {
		v.HasVoted = previous
		return err
	}
	return nil
}

// SaveVote records a cast vote. A voter holds at most one record per
// election; a second one fails with ErrAlreadyVoted.
func (s *RecordStore) SaveVote(rec models.VoteRecord) (*models.VoteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := voteKey{voterID: rec.VoterID, electionID: rec.ElectionID}
	if _, exists := s.voteIndex[key]; exists {
		return nil, errors.Wrapf(ErrAlreadyVoted, "voter %d election %d", rec.VoterID, rec.ElectionID)
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	s.votes[rec.ID] = &rec
	s.voteIndex[key] = rec.ID

	if err := s.persistLocked(); err != nil {
		delete(s.votes, rec.ID)
		delete(s.voteIndex, key)
		return nil, err
	}
	out := rec
	return &out, nil
}

func (s *RecordStore) HasVoted(voterID, electionID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.voteIndex[voteKey{voterID: voterID, electionID: electionID}]
	return exists
}

func (s *RecordStore) GetVote(id string) (*models.VoteRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.votes[id]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "vote %s", id)
	}
	out := *rec
	return &out, nil
}

// CountVotes returns how many vote records an election holds
func (s *RecordStore) CountVotes(electionID int64) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key := range s.voteIndex {
		if key.electionID == electionID {
			count++
		}
	}
	return count
}

// persistLocked mirrors the store to records.json. Caller holds s.mu.
func (s *RecordStore) persistLocked() error {
	if s.basePath == "" {
		return nil
	}

	snap := snapshot{
		Elections:  make([]models.Election, 0, len(s.elections)),
		Candidates: make([]models.Candidate, 0, len(s.candidates)),
		Voters:     make([]models.Voter, 0, len(s.voters)),
		Votes:      make([]models.VoteRecord, 0, len(s.votes)),
	}
	for _, e := range s.elections {
		snap.Elections = append(snap.Elections, *e)
	}
	for _, c := range s.candidates {
		snap.Candidates = append(snap.Candidates, *c)
	}
	for _, v := range s.voters {
		snap.Voters = append(snap.Voters, *v)
	}
	for _, r := range s.votes {
		snap.Votes = append(snap.Votes, *r)
	}
	sort.Slice(snap.Elections, func(i, j int) bool { return snap.Elections[i].ID < snap.Elections[j].ID })
	sort.Slice(snap.Candidates, func(i, j int) bool { return snap.Candidates[i].ID < snap.Candidates[j].ID })
	sort.Slice(snap.Voters, func(i, j int) bool { return snap.Voters[i].ID < snap.Voters[j].ID })
	sort.Slice(snap.Votes, func(i, j int) bool { return snap.Votes[i].Timestamp.Before(snap.Votes[j].Timestamp) })

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal records")
	}

	return writeFileAtomic(filepath.Join(s.basePath, snapshotFile), data, 0644)
}
