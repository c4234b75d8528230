package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"voting-ledger/blockchain/ledger"
	"voting-ledger/encryption"
	"voting-ledger/models"
	"voting-ledger/storage"
)

var (
	ErrElectionNotFound   = errors.New("election not found")
	ErrElectionClosed     = errors.New("election is not currently active")
	ErrVoterNotRegistered = errors.New("voter is not registered")
	ErrInvalidVoterCode   = errors.New("invalid voter code")
	ErrAlreadyVoted       = errors.New("voter has already voted in this election")
	ErrCandidateNotFound  = errors.New("candidate not found")
	ErrVoteNotFound       = errors.New("vote not found")
	ErrArchiveDisabled    = errors.New("chain archive is not configured")
	ErrQueueFull          = errors.New("vote queue is full")
	ErrQueueStopped       = errors.New("vote queue is stopped")
)

// SealListener is told about every entry the service seals
type SealListener func(models.ExportedEntry)

type VotingService struct {
	store           *storage.RecordStore
	chain           *ledger.Ledger
	cryptoService   *encryption.CryptoService
	archive         *storage.ChainArchive
	metrics         *MetricsCollector
	verifier        *VoterVerificationService
	countingService *VoteCountingService

	// castMu serialises eligibility check, append and record save so two
	// casts for the same voter cannot both pass the check
	castMu    sync.Mutex
	mu        sync.RWMutex
	listeners []SealListener
	now       func() time.Time
}

// ChainView is the full chain plus its validity flag
type ChainView struct {
	Chain   []models.ExportedEntry `json:"chain"`
	IsValid bool                   `json:"is_valid"`
	Length  int                    `json:"chain_length"`
}

type ValidationReport struct {
	IsValid bool                     `json:"is_valid"`
	Errors  []ledger.ValidationError `json:"errors"`
}

// CandidateDetail is a candidate with its ledger tally
type CandidateDetail struct {
	models.Candidate
	VoteCount int `json:"vote_count"`
}

type ElectionDetail struct {
	Election   models.Election   `json:"election"`
	Candidates []CandidateDetail `json:"candidates"`
	IsOngoing  bool              `json:"is_ongoing"`
}

// VoteConfirmation is a stored vote with its receipt re-checked against the
// operator key and the chain
type VoteConfirmation struct {
	Vote         models.VoteRecord `json:"vote"`
	Candidate    models.Candidate  `json:"candidate"`
	ReceiptValid bool              `json:"receipt_valid"`
	EntryInChain bool              `json:"entry_in_chain"`
	OperatorAddr string            `json:"operator_address"`
}

func NewVotingService(store *storage.RecordStore, chain *ledger.Ledger, cryptoService *encryption.CryptoService) *VotingService {
	metrics := NewMetricsCollector()
	return &VotingService{
		store:           store,
		chain:           chain,
		cryptoService:   cryptoService,
		metrics:         metrics,
		verifier:        NewVoterVerificationService(store),
		countingService: NewVoteCountingService(chain, metrics),
		now:             time.Now,
	}
}

// SetArchive enables ArchiveChain
func (vs *VotingService) SetArchive(archive *storage.ChainArchive) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.archive = archive
}

// OnSeal registers fn to be called after every successful cast
func (vs *VotingService) OnSeal(fn SealListener) {
	vs.mu.Lock()
	defer vs.mu.Unlock()
	vs.listeners = append(vs.listeners, fn)
}

func (vs *VotingService) Store() *storage.RecordStore {
	return vs.store
}

func (vs *VotingService) Ledger() *ledger.Ledger {
	return vs.chain
}

// CastVote checks eligibility, seals the vote on the ledger, signs a
// receipt over the entry digest and saves the vote record.
func (vs *VotingService) CastVote(ctx context.Context, voterID, electionID, candidateID int64) (*models.VoteRecord, error) {
	vs.castMu.Lock()
	defer vs.castMu.Unlock()

	vs.metrics.RecordVotingStart()
	startTime := time.Now()
	rec, err := vs.castVote(ctx, voterID, electionID, candidateID)
	vs.metrics.RecordVotingEnd(time.Since(startTime), err == nil)

	if err != nil {
		log.Printf("Vote rejected for voter %d in election %d: %v", voterID, electionID, err)
		return nil, err
	}
	return rec, nil
}

func (vs *VotingService) castVote(ctx context.Context, voterID, electionID, candidateID int64) (*models.VoteRecord, error) {
	ballot, err := vs.verifier.VerifyBallot(voterID, electionID, candidateID)
	if err != nil {
		return nil, err
	}

	castAt := vs.now().UTC()
	payload := models.NewVotePayload(ballot.Voter.ID, ballot.Candidate.ID, ballot.Election.ID, castAt)

	sealStart := time.Now()
	entry, err := vs.chain.Append(ctx, payload.Fields())
	if err != nil {
		return nil, fmt.Errorf("failed to seal vote: %w", err)
	}
	vs.metrics.RecordSeal(time.Since(sealStart), entry.Nonce+1)

	receipt, err := vs.cryptoService.SignDigest(entry.Digest)
	if err != nil {
		// The entry is sealed and cannot be withdrawn; the record is kept
		// without a receipt
		log.Printf("Warning: Failed to sign receipt for entry %d: %v", entry.Index, err)
	}

	rec, err := vs.store.SaveVote(models.VoteRecord{
		VoterID:      ballot.Voter.ID,
		CandidateID:  ballot.Candidate.ID,
		ElectionID:   ballot.Election.ID,
		Timestamp:    castAt,
		LedgerIndex:  entry.Index,
		LedgerDigest: entry.Digest,
		Receipt:      receipt,
	})
	if err != nil {
		log.Printf("Warning: Entry %d sealed but vote record not saved: %v", entry.Index, err)
		if errors.Is(err, storage.ErrAlreadyVoted) {
			return nil, fmt.Errorf("%w: %v", ErrAlreadyVoted, err)
		}
		return nil, fmt.Errorf("failed to save vote record: %w", err)
	}

	if err := vs.store.MarkVoted(ballot.Voter.ID); err != nil {
		log.Printf("Warning: Failed to mark voter %d as voted: %v", ballot.Voter.ID, err)
	}

	log.Printf("Vote %s recorded for candidate %s (entry %d)", rec.ID, ballot.Candidate.Name, entry.Index)
	vs.notify(entry.Export())
	return rec, nil
}

func (vs *VotingService) notify(e models.ExportedEntry) {
	vs.mu.RLock()
	listeners := append([]SealListener(nil), vs.listeners...)
	vs.mu.RUnlock()

	for _, fn := range listeners {
		fn(e)
	}
}

// HasVotedInChain reports whether any sealed entry carries voterID
func (vs *VotingService) HasVotedInChain(voterID int64) bool {
	return vs.chain.ExistsByField(models.FieldVoterID, voterID)
}

// CandidateVotes counts sealed entries naming candidateID
func (vs *VotingService) CandidateVotes(candidateID int64) int {
	return vs.countingService.CandidateVotes(candidateID)
}

// Results tallies an election from the ledger
func (vs *VotingService) Results(electionID int64) (*ElectionResults, error) {
	election, err := vs.store.GetElection(electionID)
	if err != nil {
		return nil, translateNotFound(err, ErrElectionNotFound)
	}

	results := vs.countingService.CountElection(*election, vs.store.ListCandidates(electionID))
	results.IsOngoing = election.IsOngoing(vs.now())
	return results, nil
}

func (vs *VotingService) ElectionDetail(electionID int64) (*ElectionDetail, error) {
	election, err := vs.store.GetElection(electionID)
	if err != nil {
		return nil, translateNotFound(err, ErrElectionNotFound)
	}

	candidates := vs.store.ListCandidates(electionID)
	details := make([]CandidateDetail, 0, len(candidates))
	for _, c := range candidates {
		details = append(details, CandidateDetail{
			Candidate: c,
			VoteCount: vs.CandidateVotes(c.ID),
		})
	}

	return &ElectionDetail{
		Election:   *election,
		Candidates: details,
		IsOngoing:  election.IsOngoing(vs.now()),
	}, nil
}

func (vs *VotingService) ListElections(activeOnly bool) []models.Election {
	return vs.store.ListElections(activeOnly)
}

// Chain renders the whole ledger with its validity flag
func (vs *VotingService) Chain() ChainView {
	chain := vs.chain.ExportChain()
	valid := vs.chain.IsValid()
	vs.metrics.RecordValidation(valid)

	return ChainView{
		Chain:   chain,
		IsValid: valid,
		Length:  len(chain),
	}
}

// Validate lists every integrity violation in the ledger
func (vs *VotingService) Validate() ValidationReport {
	violations := vs.chain.Validate()
	if violations == nil {
		violations = []ledger.ValidationError{}
	}
	vs.metrics.RecordValidation(len(violations) == 0)

	return ValidationReport{
		IsValid: len(violations) == 0,
		Errors:  violations,
	}
}

// ConfirmVote loads a vote record and re-verifies its receipt
func (vs *VotingService) ConfirmVote(voteID string) (*VoteConfirmation, error) {
	rec, err := vs.store.GetVote(voteID)
	if err != nil {
		return nil, translateNotFound(err, ErrVoteNotFound)
	}

	candidate, err := vs.store.GetCandidate(rec.CandidateID)
	if err != nil {
		return nil, translateNotFound(err, ErrCandidateNotFound)
	}

	_, lookupErr := vs.chain.EntryByDigest(rec.LedgerDigest)

	return &VoteConfirmation{
		Vote:         *rec,
		Candidate:    *candidate,
		ReceiptValid: vs.VerifyReceipt(rec),
		EntryInChain: lookupErr == nil,
		OperatorAddr: vs.cryptoService.Address(),
	}, nil
}

// VerifyReceipt checks the receipt signature and that the sealed entry
// still names the recorded vote
func (vs *VotingService) VerifyReceipt(rec *models.VoteRecord) bool {
	if rec.Receipt == "" || !vs.cryptoService.VerifyReceipt(rec.LedgerDigest, rec.Receipt) {
		return false
	}

	entry, err := vs.chain.EntryByDigest(rec.LedgerDigest)
	if err != nil {
		return false
	}
	return entry.Payload.Matches(models.FieldVoterID, rec.VoterID) &&
		entry.Payload.Matches(models.FieldCandidateID, rec.CandidateID) &&
		entry.Payload.Matches(models.FieldElectionID, rec.ElectionID)
}

// ArchiveChain writes the current chain to the configured archive
func (vs *VotingService) ArchiveChain() (string, error) {
	vs.mu.RLock()
	archive := vs.archive
	vs.mu.RUnlock()

	if archive == nil {
		return "", ErrArchiveDisabled
	}
	view := vs.Chain()
	return archive.Save(view.Chain, view.IsValid)
}

// Metrics returns collected timings with the ledger's current shape
func (vs *VotingService) Metrics() MetricsResponse {
	m := vs.metrics.GetMetrics()
	m.Sealing.Difficulty = vs.chain.Difficulty()
	m.Sealing.HashAlgorithm = vs.chain.HashAlgorithm()
	m.Sealing.ChainLength = vs.chain.Len()
	return m
}
