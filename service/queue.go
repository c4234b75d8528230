// service/queue.go
package service

import (
	"context"
	"log"
	"sync"
	"time"

	"voting-ledger/models"
)

// QueueProcessor feeds votes to CastVote from a single worker so HTTP
// handlers never contend for the ledger's write lock
type QueueProcessor struct {
	votingService   *VotingService
	voteCh          chan *VoteRequest
	processingWg    sync.WaitGroup
	shutdownCh      chan struct{}
	stateMu         sync.RWMutex
	stopped         bool
	processingDelay time.Duration // For benchmarking purposes
}

// VoteRequest represents a queued vote casting request
type VoteRequest struct {
	Ctx         context.Context
	VoterID     int64
	ElectionID  int64
	CandidateID int64
	ResultCh    chan<- *ProcessingResult
}

// ProcessingResult contains the result of an asynchronous cast
type ProcessingResult struct {
	Success      bool
	Vote         *models.VoteRecord
	Err          error
	ErrorMessage string
	Timestamp    int64
}

func NewQueueProcessor(votingService *VotingService, queueSize int, processingDelay time.Duration) *QueueProcessor {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &QueueProcessor{
		votingService:   votingService,
		voteCh:          make(chan *VoteRequest, queueSize),
		shutdownCh:      make(chan struct{}),
		processingDelay: processingDelay,
	}
}

// Start begins processing queued votes
func (qp *QueueProcessor) Start() {
	qp.processingWg.Add(1)
	go qp.voteWorker()
}

// Stop processes whatever is already queued, then returns. Votes queued
// after Stop fail immediately.
func (qp *QueueProcessor) Stop() {
	qp.stateMu.Lock()
	if !qp.stopped {
		qp.stopped = true
		close(qp.shutdownCh)
	}
	qp.stateMu.Unlock()
	qp.processingWg.Wait()
}

// QueueVote adds a vote to the processing queue. A full or stopped queue
// yields an immediate failure result.
func (qp *QueueProcessor) QueueVote(ctx context.Context, voterID, electionID, candidateID int64) <-chan *ProcessingResult {
	resultCh := make(chan *ProcessingResult, 1)

	// Held across the send so Stop cannot slip in before the worker drains
	qp.stateMu.RLock()
	defer qp.stateMu.RUnlock()

	if qp.stopped {
		resultCh <- &ProcessingResult{Success: false, Err: ErrQueueStopped, ErrorMessage: ErrQueueStopped.Error()}
		close(resultCh)
		return resultCh
	}

	select {
	case qp.voteCh <- &VoteRequest{
		Ctx:         ctx,
		VoterID:     voterID,
		ElectionID:  electionID,
		CandidateID: candidateID,
		ResultCh:    resultCh,
	}:
		return resultCh
	default:
		log.Printf("Warning: vote queue is full, request for voter %d rejected", voterID)
		resultCh <- &ProcessingResult{Success: false, Err: ErrQueueFull, ErrorMessage: ErrQueueFull.Error()}
		close(resultCh)
		return resultCh
	}
}

// voteWorker processes queued votes
func (qp *QueueProcessor) voteWorker() {
	defer qp.processingWg.Done()

	for {
		select {
		case <-qp.shutdownCh:
			qp.drain()
			return
		case req := <-qp.voteCh:
			qp.process(req)
		}
	}
}

func (qp *QueueProcessor) drain() {
	for {
		select {
		case req := <-qp.voteCh:
			qp.process(req)
		default:
			return
		}
	}
}

func (qp *QueueProcessor) process(req *VoteRequest) {
	// Add artificial delay for benchmarking if needed
	if qp.processingDelay > 0 {
		time.Sleep(qp.processingDelay)
	}

	ctx := req.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	rec, err := qp.votingService.CastVote(ctx, req.VoterID, req.ElectionID, req.CandidateID)
	if err != nil {
		req.ResultCh <- &ProcessingResult{
			Success:      false,
			Err:          err,
			ErrorMessage: err.Error(),
		}
	} else {
		req.ResultCh <- &ProcessingResult{
			Success:   true,
			Vote:      rec,
			Timestamp: time.Now().Unix(),
		}
	}
	close(req.ResultCh)
}
