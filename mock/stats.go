// Package mock holds recording implementations of the hdk.Statter and
// hdk.Logger interfaces for tests.
package mock

import (
	"sync"
	"time"
)

// RecordingStatter is used for testing. It is safe for concurrent use since
// entities may be processed in parallel.
type RecordingStatter struct {
	mu      sync.Mutex
	Counts  map[string]int64
	Timings map[string]int
}

// Count implements Count. Counts are keyed by name, and additionally by
// name plus each tag as "name,tag".
func (r *RecordingStatter) Count(name string, value int64, rate float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Counts == nil {
		r.Counts = make(map[string]int64)
	}
	r.Counts[name] += value
	for _, tag := range tags {
		r.Counts[name+","+tag] += value
	}
}

// Gauge implements Gauge.
func (r *RecordingStatter) Gauge(name string, value float64, rate float64, tags ...string) {}

// Timing implements Timing by counting the number of timings recorded per
// name.
func (r *RecordingStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Timings == nil {
		r.Timings = make(map[string]int)
	}
	r.Timings[name]++
}

// Get returns the count recorded for key.
func (r *RecordingStatter) Get(key string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Counts[key]
}
