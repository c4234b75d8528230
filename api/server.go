// File: api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"voting-ledger/service"
)

type Server struct {
	votingService *service.VotingService
	queue         *service.QueueProcessor
	hub           *StreamHub
	mux           *http.ServeMux
}

type CastVoteRequest struct {
	VoterID     int64 `json:"voter_id"`
	ElectionID  int64 `json:"election_id"`
	CandidateID int64 `json:"candidate_id"`
}

type VoterStatusResponse struct {
	VoterID         int64 `json:"voter_id"`
	HasVotedInChain bool  `json:"has_voted_in_chain"`
}

type ArchiveResponse struct {
	Path string `json:"path"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewServer wires the routes. Sealed entries are pushed to stream clients
// through a listener registered on votingService.
func NewServer(votingService *service.VotingService, queue *service.QueueProcessor) *Server {
	s := &Server{
		votingService: votingService,
		queue:         queue,
		hub:           NewStreamHub(),
		mux:           http.NewServeMux(),
	}
	votingService.OnSeal(s.hub.BroadcastEntry)

	s.mux.HandleFunc("/api/elections", s.handleListElections)
	s.mux.HandleFunc("/api/elections/detail", s.handleElectionDetail)
	s.mux.HandleFunc("/api/vote", s.handleVote)
	s.mux.HandleFunc("/api/results", s.handleGetResults)
	s.mux.HandleFunc("/api/blockchain", s.handleGetBlockchain)
	s.mux.HandleFunc("/api/blockchain/validate", s.handleValidateBlockchain)
	s.mux.HandleFunc("/api/blockchain/export", s.handleExportBlockchain)
	s.mux.HandleFunc("/api/blockchain/stream", s.handleStream)
	s.mux.HandleFunc("/api/voters/voted", s.handleVoterStatus)
	s.mux.HandleFunc("/api/metrics", s.handleGetMetrics)

	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// Hub exposes the stream hub so callers can close it on shutdown
func (s *Server) Hub() *StreamHub {
	return s.hub
}

func (s *Server) handleListElections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	activeOnly := r.URL.Query().Get("active") == "true"
	writeJSON(w, http.StatusOK, s.votingService.ListElections(activeOnly))
}

func (s *Server) handleElectionDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, ok := queryInt(w, r, "id")
	if !ok {
		return
	}

	detail, err := s.votingService.ElectionDetail(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCastVote(w, r)
	case http.MethodGet:
		s.handleGetVote(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.VoterID <= 0 || req.ElectionID <= 0 || req.CandidateID <= 0 {
		http.Error(w, "voter_id, election_id and candidate_id are required", http.StatusBadRequest)
		return
	}

	resultCh := s.queue.QueueVote(r.Context(), req.VoterID, req.ElectionID, req.CandidateID)

	select {
	case result := <-resultCh:
		if !result.Success {
			writeServiceError(w, result.Err)
			return
		}
		writeJSON(w, http.StatusCreated, result.Vote)
	case <-r.Context().Done():
		log.Printf("Client gave up waiting for vote of voter %d", req.VoterID)
	}
}

func (s *Server) handleGetVote(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	confirmation, err := s.votingService.ConfirmVote(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, confirmation)
}

func (s *Server) handleGetResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, ok := queryInt(w, r, "election_id")
	if !ok {
		return
	}

	results, err := s.votingService.Results(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) handleGetBlockchain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.votingService.Chain())
}

func (s *Server) handleValidateBlockchain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.votingService.Validate())
}

func (s *Server) handleExportBlockchain(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path, err := s.votingService.ArchiveChain()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ArchiveResponse{Path: path})
}

func (s *Server) handleVoterStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, ok := queryInt(w, r, "voter_id")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, VoterStatusResponse{
		VoterID:         id,
		HasVotedInChain: s.votingService.HasVotedInChain(id),
	})
}

func (s *Server) handleGetMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.votingService.Metrics())
}

func queryInt(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		http.Error(w, name+" is required", http.StatusBadRequest)
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		http.Error(w, "invalid "+name, http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrElectionNotFound), errors.Is(err, service.ErrVoteNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrAlreadyVoted):
		status = http.StatusConflict
	case errors.Is(err, service.ErrElectionClosed), errors.Is(err, service.ErrVoterNotRegistered):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrCandidateNotFound), errors.Is(err, service.ErrInvalidVoterCode):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrQueueFull), errors.Is(err, service.ErrQueueStopped),
		errors.Is(err, service.ErrArchiveDisabled),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		log.Printf("Request failed: %v", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
