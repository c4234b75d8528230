package models

import "time"

// Payload keys written for every vote entry
const (
	FieldVoterID     = "voter_id"
	FieldCandidateID = "candidate_id"
	FieldElectionID  = "election_id"
	FieldTimestamp   = "timestamp"
)

// VotePayload is the closed set of fields a vote puts on the ledger
type VotePayload struct {
	VoterID     int64
	CandidateID int64
	ElectionID  int64
	Timestamp   string
}

// NewVotePayload stamps the payload with castAt in RFC3339Nano
func NewVotePayload(voterID, candidateID, electionID int64, castAt time.Time) VotePayload {
	return VotePayload{
		VoterID:     voterID,
		CandidateID: candidateID,
		ElectionID:  electionID,
		Timestamp:   castAt.UTC().Format(time.RFC3339Nano),
	}
}

// Fields returns the generic mapping handed to the ledger
func (v VotePayload) Fields() map[string]any {
	return map[string]any{
		FieldVoterID:     v.VoterID,
		FieldCandidateID: v.CandidateID,
		FieldElectionID:  v.ElectionID,
		FieldTimestamp:   v.Timestamp,
	}
}

// VoteRecord is the relational copy of a cast vote. LedgerDigest cross
// references the sealed entry; Receipt is the operator signature over it.
type VoteRecord struct {
	ID           string    `json:"id"`
	VoterID      int64     `json:"voter_id"`
	CandidateID  int64     `json:"candidate_id"`
	ElectionID   int64     `json:"election_id"`
	Timestamp    time.Time `json:"timestamp"`
	LedgerIndex  uint64    `json:"ledger_index"`
	LedgerDigest string    `json:"ledger_digest"`
	Receipt      string    `json:"receipt"`
}
