package snapshot

import (
	"sync"
	"time"

	"github.com/micro-ha/att-presence/addon/internal/model"
)

// State is what consumers read: the last committed snapshot and presence, plus
// whether the most recent poll failed.
type State struct {
	Snapshot      model.Snapshot       `json:"snapshot"`
	Presence      model.PresenceResult `json:"presence"`
	Available     bool                 `json:"available"`
	Stale         bool                 `json:"stale"`
	Failure       *model.Failure       `json:"failure,omitempty"`
	LastAttemptAt *time.Time           `json:"last_attempt_at,omitempty"`
	LastSuccessAt *time.Time           `json:"last_success_at,omitempty"`
	Polls         int64                `json:"polls"`
	Failures      int64                `json:"failures"`
}

func (s State) Clone() State {
	s.Snapshot = s.Snapshot.Clone()
	s.Presence = clonePresence(s.Presence)
	if s.Failure != nil {
		failure := *s.Failure
		s.Failure = &failure
	}
	s.LastAttemptAt = cloneTime(s.LastAttemptAt)
	s.LastSuccessAt = cloneTime(s.LastSuccessAt)
	return s
}

// Sink receives every committed state, after the store lock is released.
type Sink interface {
	Notify(State)
}

type SinkFunc func(State)

func (f SinkFunc) Notify(s State) { f(s) }

type Store struct {
	mu    sync.RWMutex
	state State
	sinks []Sink
}

func NewStore(sinks ...Sink) *Store {
	return &Store{
		state: State{Snapshot: model.Snapshot{Devices: map[string]model.DeviceRecord{}}},
		sinks: sinks,
	}
}

// AddSink registers s for later commits.
func (st *Store) AddSink(s Sink) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sinks = append(st.sinks, s)
}

// Seed installs a restored device map as the reconciliation baseline. It does not
// make the store available and is ignored once a poll has been published.
func (st *Store) Seed(devices map[string]model.DeviceRecord) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.state.Available {
		return
	}
	snap := model.Snapshot{Devices: make(map[string]model.DeviceRecord, len(devices))}
	for mac, rec := range devices {
		rec = rec.Clone()
		rec.Online = false
		snap.Devices[mac] = rec
	}
	st.state.Snapshot = snap
}

// Publish commits snap and result together and makes snap the next baseline.
func (st *Store) Publish(snap model.Snapshot, result model.PresenceResult) {
	st.mu.Lock()
	at := snap.FetchedAt
	st.state.Snapshot = snap.Clone()
	st.state.Presence = clonePresence(result)
	st.state.Available = true
	st.state.Stale = false
	st.state.Failure = nil
	st.state.LastAttemptAt = &at
	success := at
	st.state.LastSuccessAt = &success
	st.state.Polls++
	committed, sinks := st.state.Clone(), st.sinks
	st.mu.Unlock()

	notify(sinks, committed)
}

// Fail records a failed poll. Snapshot and presence stay exactly as they were.
func (st *Store) Fail(err error, at time.Time) {
	if err == nil {
		return
	}
	st.mu.Lock()
	st.state.Stale = true
	st.state.Failure = &model.Failure{Kind: model.KindOf(err), Message: err.Error(), At: at}
	attempt := at
	st.state.LastAttemptAt = &attempt
	st.state.Polls++
	st.state.Failures++
	committed, sinks := st.state.Clone(), st.sinks
	st.mu.Unlock()

	notify(sinks, committed)
}

// Reclassify recomputes presence over the committed snapshot, e.g. after the
// always-home set changed. Staleness and failure are left alone. It reports false
// when nothing has been published yet.
func (st *Store) Reclassify(classify func(model.Snapshot) model.PresenceResult) bool {
	st.mu.Lock()
	if !st.state.Available {
		st.mu.Unlock()
		return false
	}
	st.state.Presence = clonePresence(classify(st.state.Snapshot.Clone()))
	committed, sinks := st.state.Clone(), st.sinks
	st.mu.Unlock()

	notify(sinks, committed)
	return true
}

// Baseline returns a copy of the last committed (or seeded) snapshot.
func (st *Store) Baseline() model.Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.Snapshot.Clone()
}

func (st *Store) Current() State {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.Clone()
}

func (st *Store) Available() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.state.Available
}

func notify(sinks []Sink, state State) {
	for _, sink := range sinks {
		sink.Notify(state.Clone())
	}
}

func clonePresence(p model.PresenceResult) model.PresenceResult {
	p.TrackedOnlineNames = cloneStrings(p.TrackedOnlineNames)
	p.TrackedOfflineNames = cloneStrings(p.TrackedOfflineNames)
	p.AlwaysHomeOnlineNames = cloneStrings(p.AlwaysHomeOnlineNames)
	p.AlwaysHomeOfflineNames = cloneStrings(p.AlwaysHomeOfflineNames)
	return p
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
