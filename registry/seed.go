package registry

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"voting-ledger/models"
	"voting-ledger/storage"
)

// Seed describes the elections, candidates and voters loaded at startup.
// Election windows are offsets from the time the seed is applied.
type Seed struct {
	Elections []ElectionSeed `yaml:"elections"`
	Voters    []VoterSeed    `yaml:"voters"`
}

type ElectionSeed struct {
	Title       string          `yaml:"title"`
	Description string          `yaml:"description"`
	StartOffset time.Duration   `yaml:"start_offset"`
	Duration    time.Duration   `yaml:"duration"`
	Active      *bool           `yaml:"active"` // nil means active
	Candidates  []CandidateSeed `yaml:"candidates"`
}

type CandidateSeed struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Photo       string `yaml:"photo"`
}

type VoterSeed struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// Summary counts what Apply created
type Summary struct {
	Elections  int
	Candidates int
	Voters     int
}

// RecordWriter is the part of the record store a seed writes to
type RecordWriter interface {
	CreateElection(e models.Election) (*models.Election, error)
	AddCandidate(c models.Candidate) (*models.Candidate, error)
	RegisterVoter(v models.Voter) (*models.Voter, error)
}

// DefaultSeed is the demo data set: one open student council election with
// three candidates and five voters
func DefaultSeed() *Seed {
	voters := make([]VoterSeed, 0, 5)
	for i := 1; i <= 5; i++ {
		voters = append(voters, VoterSeed{
			Code: fmt.Sprintf("V%d", 1000+i),
			Name: fmt.Sprintf("Voter %d", i),
		})
	}

	return &Seed{
		Elections: []ElectionSeed{{
			Title:       "Student Council President Election 2025",
			Description: "Vote for your next student council president.",
			StartOffset: -time.Hour,
			Duration:    7*24*time.Hour + time.Hour,
			Candidates: []CandidateSeed{
				{Name: "Alice Johnson", Description: "Experienced leader with a vision for innovation and student engagement."},
				{Name: "Bob Smith", Description: "Advocate for student rights and campus improvement."},
				{Name: "Carol Williams", Description: "Passionate about sustainability and inclusive campus culture."},
			},
		}},
		Voters: voters,
	}
}

// LoadSeed reads a YAML seed file. An empty path returns DefaultSeed.
func LoadSeed(path string) (*Seed, error) {
	if path == "" {
		return DefaultSeed(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}

	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file %s: %w", path, err)
	}
	if err := seed.Validate(); err != nil {
		return nil, fmt.Errorf("invalid seed file %s: %w", path, err)
	}
	return &seed, nil
}

// Validate checks the seed before anything is written
func (s *Seed) Validate() error {
	for i, e := range s.Elections {
		if e.Title == "" {
			return fmt.Errorf("election %d: title is required", i)
		}
		if e.Duration <= 0 {
			return fmt.Errorf("election %q: duration must be positive", e.Title)
		}
		for j, c := range e.Candidates {
			if c.Name == "" {
				return fmt.Errorf("election %q candidate %d: name is required", e.Title, j)
			}
		}
	}
	for i, v := range s.Voters {
		if v.Code == "" {
			return fmt.Errorf("voter %d: code is required", i)
		}
	}
	return nil
}

// Apply creates the seed's records. Voters whose code already exists are
// skipped.
func Apply(store RecordWriter, seed *Seed, now time.Time) (Summary, error) {
	var summary Summary
	if err := seed.Validate(); err != nil {
		return summary, err
	}

	for _, es := range seed.Elections {
		active := es.Active == nil || *es.Active
		start := now.Add(es.StartOffset).UTC()

		election, err := store.CreateElection(models.Election{
			Title:       es.Title,
			Description: es.Description,
			StartDate:   start,
			EndDate:     start.Add(es.Duration),
			IsActive:    active,
			CreatedAt:   now.UTC(),
		})
		if err != nil {
			return summary, fmt.Errorf("failed to create election %q: %w", es.Title, err)
		}
		summary.Elections++

		for _, cs := range es.Candidates {
			if _, err := store.AddCandidate(models.Candidate{
				ElectionID:  election.ID,
				Name:        cs.Name,
				Description: cs.Description,
				Photo:       cs.Photo,
			}); err != nil {
				return summary, fmt.Errorf("failed to add candidate %q: %w", cs.Name, err)
			}
			summary.Candidates++
		}
	}

	for _, vs := range seed.Voters {
		_, err := store.RegisterVoter(models.Voter{
			VoterCode:    vs.Code,
			Name:         vs.Name,
			RegisteredAt: now.UTC(),
		})
		if errors.Is(err, storage.ErrDuplicate) {
			log.Printf("Voter %s already registered, skipping", vs.Code)
			continue
		}
		if err != nil {
			return summary, fmt.Errorf("failed to register voter %s: %w", vs.Code, err)
		}
		summary.Voters++
	}

	log.Printf("Seeded %d elections, %d candidates, %d voters",
		summary.Elections, summary.Candidates, summary.Voters)
	return summary, nil
}
