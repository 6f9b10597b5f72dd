package metrics

// SyncObserver receives the sync subsystem's observability signals.
type SyncObserver interface {
	ObserveQueueDepth(state string, n int64)
	ObserveOldestPendingAge(seconds float64)
	RecordResult(result string)
	RecordRemoteAttempts(n int)
	ObserveDrainDuration(seconds float64)
}

// NoopObserver discards everything; handy for tests.
type NoopObserver struct{}

func (NoopObserver) ObserveQueueDepth(string, int64) {}
func (NoopObserver) ObserveOldestPendingAge(float64) {}
func (NoopObserver) RecordResult(string)             {}
func (NoopObserver) RecordRemoteAttempts(int)        {}
func (NoopObserver) ObserveDrainDuration(float64)    {}
