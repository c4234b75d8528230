package models

import "time"

// Election is an election event; votes are accepted while IsOngoing
type Election struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsOngoing reports whether the election is active and now is within its window
func (e *Election) IsOngoing(now time.Time) bool {
	return e.IsActive && !now.Before(e.StartDate) && !now.After(e.EndDate)
}

type Candidate struct {
	ID          int64  `json:"id"`
	ElectionID  int64  `json:"election_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Photo       string `json:"photo,omitempty"`
}
