package service

import (
	"sync"
	"time"
)

// MetricsCollector tracks timing for vote casting, sealing, counting and
// chain validation
type MetricsCollector struct {
	mu sync.RWMutex

	votingStartTime time.Time
	votingEndTime   time.Time
	votingCount     int
	votingFailures  int
	votingTotalTime time.Duration

	sealCount         int
	sealTotalTime     time.Duration
	sealLastTime      time.Duration
	sealNonceAttempts uint64

	countingStartTime      time.Time
	countingEndTime        time.Time
	countingRuns           int
	countingProcessingTime time.Duration

	validationRuns     int
	validationFailures int
	lastValidation     time.Time
}

// OperationMetrics contains timing information for an operation
type OperationMetrics struct {
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	Count          int       `json:"count"`
	Failures       int       `json:"failures,omitempty"`
	ProcessingTime int64     `json:"processing_time_ms"`
}

// SealingMetrics describes proof-of-work effort
type SealingMetrics struct {
	Count         int    `json:"count"`
	TotalTimeMs   int64  `json:"total_time_ms"`
	LastTimeMs    int64  `json:"last_time_ms"`
	AverageTimeMs int64  `json:"average_time_ms"`
	NonceAttempts uint64 `json:"nonce_attempts"`
	Difficulty    int    `json:"difficulty"`
	HashAlgorithm string `json:"hash_algorithm"`
	ChainLength   int    `json:"chain_length"`
}

type ValidationMetrics struct {
	Runs     int       `json:"runs"`
	Failures int       `json:"failures"`
	LastRun  time.Time `json:"last_run"`
}

// MetricsResponse provides the metrics for all operations
type MetricsResponse struct {
	Voting     OperationMetrics  `json:"voting"`
	Sealing    SealingMetrics    `json:"sealing"`
	Counting   OperationMetrics  `json:"counting"`
	Validation ValidationMetrics `json:"validation"`
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{}
}

// RecordVotingStart marks the start of a voting operation
func (mc *MetricsCollector) RecordVotingStart() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if mc.votingCount == 0 && mc.votingFailures == 0 {
		mc.votingStartTime = time.Now()
	}
}

// RecordVotingEnd closes a voting operation; failed casts are counted apart
func (mc *MetricsCollector) RecordVotingEnd(duration time.Duration, ok bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.votingEndTime = time.Now()
	mc.votingTotalTime += duration
	if ok {
		mc.votingCount++
	} else {
		mc.votingFailures++
	}
}

// RecordSeal adds one proof-of-work run that tried attempts nonces
func (mc *MetricsCollector) RecordSeal(duration time.Duration, attempts uint64) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.sealCount++
	mc.sealTotalTime += duration
	mc.sealLastTime = duration
	mc.sealNonceAttempts += attempts
}

func (mc *MetricsCollector) RecordCountingStart() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.countingStartTime = time.Now()
}

func (mc *MetricsCollector) RecordCountingEnd() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.countingEndTime = time.Now()
	mc.countingRuns++
	mc.countingProcessingTime += mc.countingEndTime.Sub(mc.countingStartTime)
}

func (mc *MetricsCollector) RecordValidation(valid bool) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.validationRuns++
	if !valid {
		mc.validationFailures++
	}
	mc.lastValidation = time.Now()
}

// GetMetrics returns current metrics for all operations. Ledger fields of
// Sealing are filled in by the caller.
func (mc *MetricsCollector) GetMetrics() MetricsResponse {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	var average int64
	if mc.sealCount > 0 {
		average = (mc.sealTotalTime / time.Duration(mc.sealCount)).Milliseconds()
	}

	return MetricsResponse{
		Voting: OperationMetrics{
			StartTime:      mc.votingStartTime,
			EndTime:        mc.votingEndTime,
			Count:          mc.votingCount,
			Failures:       mc.votingFailures,
			ProcessingTime: mc.votingTotalTime.Milliseconds(),
		},
		Sealing: SealingMetrics{
			Count:         mc.sealCount,
			TotalTimeMs:   mc.sealTotalTime.Milliseconds(),
			LastTimeMs:    mc.sealLastTime.Milliseconds(),
			AverageTimeMs: average,
			NonceAttempts: mc.sealNonceAttempts,
		},
		Counting: OperationMetrics{
			StartTime:      mc.countingStartTime,
			EndTime:        mc.countingEndTime,
			Count:          mc.countingRuns,
			ProcessingTime: mc.countingProcessingTime.Milliseconds(),
		},
		Validation: ValidationMetrics{
			Runs:     mc.validationRuns,
			Failures: mc.validationFailures,
			LastRun:  mc.lastValidation,
		},
	}
}

// Reset clears all metrics
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.votingStartTime = time.Time{}
	mc.votingEndTime = time.Time{}
	mc.votingCount = 0
	mc.votingFailures = 0
	mc.votingTotalTime = 0

	mc.sealCount = 0
	mc.sealTotalTime = 0
	mc.sealLastTime = 0
	mc.sealNonceAttempts = 0

	mc.countingStartTime = time.Time{}
	mc.countingEndTime = time.Time{}
	mc.countingRuns = 0
	mc.countingProcessingTime = 0

	mc.validationRuns = 0
	mc.validationFailures = 0
	mc.lastValidation = time.Time{}
}
