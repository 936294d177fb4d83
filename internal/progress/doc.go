// Package progress tracks cumulative bytes of one download against its
// total and produces the progress payloads delivered to subscribers.
//
// An Aggregator is created per session:
//
//	agg := progress.New(domain.UnknownTotal)
//	payload, err := agg.Record(int64(len(chunk)))
//
// The total can be discovered lazily with SetTotal, exactly once. Recording
// past a known total fails with *domain.OverflowError rather than clamping.
package progress
