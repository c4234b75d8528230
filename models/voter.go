package models

import "time"

type Voter struct {
	ID           int64     `json:"id"`
	VoterCode    string    `json:"voter_code"`
	Name         string    `json:"name"`
	HasVoted     bool      `json:"has_voted"`
	RegisteredAt time.Time `json:"registered_at"`
}
