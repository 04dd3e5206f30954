package app

import (
	"expvar"
	"sort"
	"strconv"

	"github.com/example/certs/internal/core/eligibility"
)

// Task outcomes counted by Metrics.
const (
	TaskOutcomeDone    = "done"
	TaskOutcomeRetried = "retried"
	TaskOutcomeFailed  = "failed"
)

// Metrics holds process counters for decisions, tasks and credentials traffic.
// The maps are unpublished until Publish is called so tests can build many.
type Metrics struct {
	Decisions   *expvar.Map
	Tasks       *expvar.Map
	Credentials *expvar.Map
}

// NewMetrics creates zeroed counters.
func NewMetrics() *Metrics {
	return &Metrics{
		Decisions:   new(expvar.Map).Init(),
		Tasks:       new(expvar.Map).Init(),
		Credentials: new(expvar.Map).Init(),
	}
}

// Publish registers the maps under prefix in the expvar registry.
// Must be called at most once per prefix per process.
func (m *Metrics) Publish(prefix string) {
	expvar.Publish(prefix+".decisions", m.Decisions)
	expvar.Publish(prefix+".tasks", m.Tasks)
	expvar.Publish(prefix+".credentials", m.Credentials)
}

// Decision counts an eligibility decision by kind, with the reason for skips.
func (m *Metrics) Decision(d eligibility.Decision) {
	if m == nil {
		return
	}
	key := string(d.Kind)
	if d.IsSkip() {
		key += ":" + string(d.Reason)
	}
	m.Decisions.Add(key, 1)
}

// Prevented counts a generation vetoed by the creation filter.
func (m *Metrics) Prevented() {
	if m == nil {
		return
	}
	m.Decisions.Add("prevented", 1)
}

// Task counts a finished task attempt.
func (m *Metrics) Task(kind, outcome string) {
	if m == nil {
		return
	}
	m.Tasks.Add(kind+":"+outcome, 1)
}

// CredentialsEnqueued counts a credentials notification by kind.
func (m *Metrics) CredentialsEnqueued(kind string) {
	if m == nil {
		return
	}
	m.Credentials.Add(kind, 1)
}

// Snapshot returns every counter as "group.key" → value, for CLI output and tests.
func (m *Metrics) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	if m == nil {
		return out
	}
	collect := func(group string, mp *expvar.Map) {
		mp.Do(func(kv expvar.KeyValue) {
			if n, err := strconv.ParseInt(kv.Value.String(), 10, 64); err == nil {
				out[group+"."+kv.Key] = n
			}
		})
	}
	collect("decisions", m.Decisions)
	collect("tasks", m.Tasks)
	collect("credentials", m.Credentials)
	return out
}

// SortedKeys returns the snapshot keys in order.
func SortedKeys(snapshot map[string]int64) []string {
	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
