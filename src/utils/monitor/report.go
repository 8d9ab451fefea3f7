package monitor

import (
	"go.uber.org/atomic"
)

type ObserverErrors struct {
	ChainReadErrors      atomic.Int64 `json:"chain_read"`
	CasRetrievalErrors   atomic.Int64 `json:"cas_retrieval"`
	ProcessingErrors     atomic.Int64 `json:"processing"`
	StoreErrors          atomic.Int64 `json:"store"`
	LoopFailures         atomic.Int64 `json:"loop_failures"`
	UnresolvableRecorded atomic.Int64 `json:"unresolvable_recorded"`
}

type ObserverState struct {
	StartTimestamp atomic.Int64  `json:"start_timestamp"`
	UpForSeconds   atomic.Uint64 `json:"up_for_seconds"`

	// historical or live
	Phase atomic.String `json:"phase"`

	ChainCurrentHeight  atomic.Uint64  `json:"chain_current_height"`
	LastSyncedBlock     atomic.Uint64  `json:"last_synced_block"`
	TargetBlock         atomic.Uint64  `json:"target_block"`
	SyncProgressPercent atomic.Float64 `json:"sync_progress_percent"`

	TransactionsPersisted atomic.Uint64 `json:"transactions_persisted"`
	OperationsSaved       atomic.Uint64 `json:"operations_saved"`

	ReorgsDetected       atomic.Uint64 `json:"reorgs_detected"`
	UnresolvableRetries  atomic.Uint64 `json:"unresolvable_retries"`
	LastLoopTimestamp    atomic.Int64  `json:"last_loop_timestamp"`
	TransactionsInFlight atomic.Int64  `json:"transactions_in_flight"`

	AverageTransactionsPersistedPerMinute atomic.Float64 `json:"average_transactions_persisted_per_minute"`
	AverageBlocksSyncedPerMinute          atomic.Float64 `json:"average_blocks_synced_per_minute"`
}

type Report struct {
	State  ObserverState  `json:"state"`
	Errors ObserverErrors `json:"errors"`
}
