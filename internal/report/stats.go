// Package report aggregates run statistics and renders progress and summaries.
package report

import "sync/atomic"

// Stats holds the counters of one run. It is shared by concurrent workers;
// every field is an atomic counter so each increment is its own critical section.
type Stats struct {
	Checked          atomic.Int64
	Updated          atomic.Int64
	Skipped          atomic.Int64
	Failed           atomic.Int64
	MissingMilestone atomic.Int64

	// Issue-to-milestone conversion.
	Created      atomic.Int64
	Existing     atomic.Int64
	CreateFailed atomic.Int64
	Unrouted     atomic.Int64

	// Tree anomalies (cycles, duplicate edges, depth limit) and collection errors.
	Anomalies     atomic.Int64
	CollectFailed atomic.Int64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Checked          int64
	Updated          int64
	Skipped          int64
	Failed           int64
	MissingMilestone int64
	Created          int64
	Existing         int64
	CreateFailed     int64
	Unrouted         int64
	Anomalies        int64
	CollectFailed    int64
}

// Snapshot copies the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Checked:          s.Checked.Load(),
		Updated:          s.Updated.Load(),
		Skipped:          s.Skipped.Load(),
		Failed:           s.Failed.Load(),
		MissingMilestone: s.MissingMilestone.Load(),
		Created:          s.Created.Load(),
		Existing:         s.Existing.Load(),
		CreateFailed:     s.CreateFailed.Load(),
		Unrouted:         s.Unrouted.Load(),
		Anomalies:        s.Anomalies.Load(),
		CollectFailed:    s.CollectFailed.Load(),
	}
}

// Add folds another snapshot into s.
func (s *Stats) Add(o Snapshot) {
	s.Checked.Add(o.Checked)
	s.Updated.Add(o.Updated)
	s.Skipped.Add(o.Skipped)
	s.Failed.Add(o.Failed)
	s.MissingMilestone.Add(o.MissingMilestone)
	s.Created.Add(o.Created)
	s.Existing.Add(o.Existing)
	s.CreateFailed.Add(o.CreateFailed)
	s.Unrouted.Add(o.Unrouted)
	s.Anomalies.Add(o.Anomalies)
	s.CollectFailed.Add(o.CollectFailed)
}
