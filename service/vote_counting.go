package service

import (
	"sort"

	"voting-ledger/models"
)

// TallySource answers per-field counts over the sealed chain
type TallySource interface {
	CountByField(field string, value any) int
}

// VoteCountingService tallies elections straight from the ledger; vote
// records are never consulted so the tally reflects what was sealed.
type VoteCountingService struct {
	chain   TallySource
	metrics *MetricsCollector
}

func NewVoteCountingService(chain TallySource, metrics *MetricsCollector) *VoteCountingService {
	return &VoteCountingService{
		chain:   chain,
		metrics: metrics,
	}
}

// CandidateResult is one row of an election tally
type CandidateResult struct {
	Candidate  models.Candidate `json:"candidate"`
	Votes      int              `json:"votes"`
	Percentage float64          `json:"percentage"`
}

// ElectionResults represents the final vote count
type ElectionResults struct {
	Election   models.Election   `json:"election"`
	TotalVotes int               `json:"total_votes"`
	Results    []CandidateResult `json:"results"`
	IsOngoing  bool              `json:"is_ongoing"`
}

// CandidateVotes counts ledger entries naming candidateID
func (vcs *VoteCountingService) CandidateVotes(candidateID int64) int {
	return vcs.chain.CountByField(models.FieldCandidateID, candidateID)
}

// CountElection tallies candidates, sorted by votes descending then name.
// Percentages are of the election total and zero when nobody voted.
func (vcs *VoteCountingService) CountElection(election models.Election, candidates []models.Candidate) *ElectionResults {
	if vcs.metrics != nil {
		vcs.metrics.RecordCountingStart()
		defer vcs.metrics.RecordCountingEnd()
	}

	results := make([]CandidateResult, 0, len(candidates))
	total := 0
	for _, c := range candidates {
		votes := vcs.CandidateVotes(c.ID)
		total += votes
		results = append(results, CandidateResult{Candidate: c, Votes: votes})
	}

	for i := range results {
		if total > 0 {
			results[i].Percentage = float64(results[i].Votes) * 100 / float64(total)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Votes != results[j].Votes {
			return results[i].Votes > results[j].Votes
		}
		return results[i].Candidate.Name < results[j].Candidate.Name
	})

	return &ElectionResults{
		Election:   election,
		TotalVotes: total,
		Results:    results,
	}
}
