package service

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"voting-ledger/models"
	"voting-ledger/storage"
)

var voterCodePattern = regexp.MustCompile(`^V\d{4,}$`)

// RecordLookup is the part of the record store eligibility checks read
type RecordLookup interface {
	GetElection(id int64) (*models.Election, error)
	GetVoter(id int64) (*models.Voter, error)
	GetCandidate(id int64) (*models.Candidate, error)
	HasVoted(voterID, electionID int64) bool
}

// Ballot is a vote that passed every eligibility check
type Ballot struct {
	Voter     *models.Voter
	Election  *models.Election
	Candidate *models.Candidate
}

type VoterVerificationService struct {
	records RecordLookup
	now     func() time.Time
}

func NewVoterVerificationService(records RecordLookup) *VoterVerificationService {
	return &VoterVerificationService{
		records: records,
		now:     time.Now,
	}
}

// VerifyBallot performs all checks before a vote reaches the ledger
func (vvs *VoterVerificationService) VerifyBallot(voterID, electionID, candidateID int64) (*Ballot, error) {
	// 1. Election exists and accepts votes right now
	election, err := vvs.records.GetElection(electionID)
	if err != nil {
		return nil, translateNotFound(err, ErrElectionNotFound)
	}
	if !election.IsOngoing(vvs.now()) {
		return nil, fmt.Errorf("%w: election %d", ErrElectionClosed, electionID)
	}

	// 2. Voter is registered with a well-formed code
	voter, err := vvs.records.GetVoter(voterID)
	if err != nil {
		return nil, translateNotFound(err, ErrVoterNotRegistered)
	}
	if err := vvs.verifyVoterCode(voter.VoterCode); err != nil {
		return nil, fmt.Errorf("voter code validation failed: %w", err)
	}

	// 3. One vote per voter per election
	if vvs.records.HasVoted(voterID, electionID) {
		return nil, fmt.Errorf("%w: voter %d election %d", ErrAlreadyVoted, voterID, electionID)
	}

	// 4. Candidate stands in this election
	candidate, err := vvs.records.GetCandidate(candidateID)
	if err != nil {
		return nil, translateNotFound(err, ErrCandidateNotFound)
	}
	if candidate.ElectionID != electionID {
		return nil, fmt.Errorf("%w: candidate %d is not in election %d", ErrCandidateNotFound, candidateID, electionID)
	}

	return &Ballot{Voter: voter, Election: election, Candidate: candidate}, nil
}

func (vvs *VoterVerificationService) verifyVoterCode(code string) error {
	if !voterCodePattern.MatchString(code) {
		return fmt.Errorf("%w: %q", ErrInvalidVoterCode, code)
	}
	return nil
}

func translateNotFound(err, target error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: %v", target, err)
	}
	return err
}
