// Package topics is the shared message store plugins use to coordinate.
//
// A topic is looked up by name and handed out by reference: every plugin that calls
// Get for the same id receives the same *Topic, so a write by one plugin is visible
// to the others on their next read. The first plugin to populate a topic defines its
// fields; later readers assume those fields exist. That is a convention, nothing
// enforces it.
//
// The store has no locking. It is owned by the scheduler goroutine and must only be
// touched from plugin PollIt/Shutdown calls or tasks running on that goroutine.
package topics

import (
	"sort"

	"pollooper/pkg/ticks"
)

// Topic is one named entry of the store.
type Topic struct {
	id         string
	fields     map[string]any
	record     any
	lastUpdate ticks.Tick
}

func newTopic(id string) *Topic {
	return &Topic{id: id, fields: map[string]any{}}
}

func (t *Topic) ID() string { return t.id }

// Get returns the field value and whether it was present.
func (t *Topic) Get(field string) (any, bool) {
	v, ok := t.fields[field]
	return v, ok
}

// Set writes one field. It does not touch LastUpdate; use Store.SetField for that.
func (t *Topic) Set(field string, v any) { t.fields[field] = v }

// Fields returns a copy of the field map.
func (t *Topic) Fields() map[string]any {
	out := make(map[string]any, len(t.fields))
	for k, v := range t.fields {
		out[k] = v
	}
	return out
}

// LastUpdate is the tick of the last Store.Set or Store.SetField on this topic.
func (t *Topic) LastUpdate() ticks.Tick { return t.lastUpdate }

// Store maps topic ids to topics.
type Store struct {
	now    func() ticks.Tick
	topics map[string]*Topic
}

// NewStore returns an empty store. now stamps LastUpdate; nil stamps zero.
func NewStore(now func() ticks.Tick) *Store {
	if now == nil {
		now = func() ticks.Tick { return 0 }
	}
	return &Store{now: now, topics: map[string]*Topic{}}
}

// Get returns the topic, creating it empty if it does not exist yet.
func (s *Store) Get(id string) *Topic {
	t, ok := s.topics[id]
	if !ok {
		t = newTopic(id)
		s.topics[id] = t
	}
	return t
}

// Lookup returns the topic without creating it.
func (s *Store) Lookup(id string) (*Topic, bool) {
	t, ok := s.topics[id]
	return t, ok
}

// Set merges fields into the topic, creating it if needed, and stamps LastUpdate.
func (s *Store) Set(id string, fields map[string]any) *Topic {
	t := s.Get(id)
	for k, v := range fields {
		t.fields[k] = v
	}
	t.lastUpdate = s.now()
	return t
}

// SetField writes one field and stamps LastUpdate.
func (s *Store) SetField(id, field string, v any) {
	t := s.Get(id)
	t.fields[field] = v
	t.lastUpdate = s.now()
}

// GetField returns the field value. A missing topic or field reports ok == false;
// a missing topic is not created.
func (s *Store) GetField(id, field string) (any, bool) {
	t, ok := s.topics[id]
	if !ok {
		return nil, false
	}
	return t.Get(field)
}

// IDs returns the known topic ids, sorted.
func (s *Store) IDs() []string {
	out := make([]string, 0, len(s.topics))
	for id := range s.topics {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Record returns the typed record attached to topic id, allocating a zero T on first use.
// All callers share the same *T, so topics with a known shape can skip the field map.
// It panics if the topic already holds a record of a different type.
func Record[T any](s *Store, id string) *T {
	t := s.Get(id)
	if t.record == nil {
		v := new(T)
		t.record = v
		return v
	}
	v, ok := t.record.(*T)
	if !ok {
		panic("topics: record type mismatch for topic " + id)
	}
	return v
}

// Touch stamps LastUpdate on the topic. Plugins mutating a Record call it to publish the change time.
func (s *Store) Touch(id string) {
	s.Get(id).lastUpdate = s.now()
}

// Field reads a field and converts it to T. ok is false when the field is absent
// or holds a different type.
func Field[T any](t *Topic, name string) (T, bool) {
	var zero T
	if t == nil {
		return zero, false
	}
	raw, ok := t.fields[name]
	if !ok {
		return zero, false
	}
	v, ok := raw.(T)
	if !ok {
		return zero, false
	}
	return v, true
}
