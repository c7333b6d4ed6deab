package brew

import (
	"cmp"
	"sync"
)

// SharedMap is an associative container guarded by a caller-supplied mutex.
// Several maps can share one mutex so that compound updates spanning all of
// them stay atomic; Locker exposes the mutex for callers that need to hold
// it across their own multi-step sequences.
//
// Keys must be ordered so that RemoveTop has a stable notion of which entry
// comes first.
type SharedMap[K cmp.Ordered, V any] struct {
	mu *sync.Mutex
	m  map[K]V
}

// NewSharedMap returns an empty map guarded by mu. The mutex is shared, not
// owned: the caller may guard other state with the same lock.
func NewSharedMap[K cmp.Ordered, V any](mu *sync.Mutex) *SharedMap[K, V] {
	return &SharedMap[K, V]{mu: mu, m: make(map[K]V)}
}

// Locker returns the mutex guarding the map.
func (s *SharedMap[K, V]) Locker() *sync.Mutex { return s.mu }

// Len returns the number of entries.
func (s *SharedMap[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.m)
}

// Get returns the value stored under key.
func (s *SharedMap[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.m[key]
	return v, ok
}

// Has reports whether key is present.
func (s *SharedMap[K, V]) Has(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.m[key]
	return ok
}

// Insert stores val under key only if the key is absent and reports whether
// it stored anything. An existing entry is never overwritten.
func (s *SharedMap[K, V]) Insert(key K, val V) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; ok {
		return false
	}
	s.m[key] = val
	return true
}

// Set stores val under key unconditionally.
func (s *SharedMap[K, V]) Set(key K, val V) {
	s.mu.Lock()
	s.m[key] = val
	s.mu.Unlock()
}

// GetOrInsert returns the value under key, calling create to build and store
// one if the key is absent. create runs with the map lock held, so it must
// not touch the map or anything else guarded by the same mutex.
func (s *SharedMap[K, V]) GetOrInsert(key K, create func() V) V {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.m[key]; ok {
		return v
	}
	v := create()
	s.m[key] = v
	return v
}

// Erase removes key and reports whether it was present.
func (s *SharedMap[K, V]) Erase(key K) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; !ok {
		return false
	}
	delete(s.m, key)
	return true
}

// Clear removes all entries.
func (s *SharedMap[K, V]) Clear() {
	s.mu.Lock()
	s.m = make(map[K]V)
	s.mu.Unlock()
}

// RemoveTop removes and returns the entry with the smallest key. It reports
// false when the map is empty, leaving the zero key and value.
func (s *SharedMap[K, V]) RemoveTop() (key K, val V, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.m {
		if !ok || k < key {
			key = k
			ok = true
		}
	}
	if !ok {
		return key, val, false
	}
	val = s.m[key]
	delete(s.m, key)
	return key, val, true
}

// Range calls fn for each entry until fn returns false. It walks a snapshot
// taken under the lock, so fn runs unlocked and may call back into the map;
// mutations made during the walk are not reflected in it.
func (s *SharedMap[K, V]) Range(fn func(key K, val V) bool) {
	s.mu.Lock()
	keys := make([]K, 0, len(s.m))
	vals := make([]V, 0, len(s.m))
	for k, v := range s.m {
		keys = append(keys, k)
		vals = append(vals, v)
	}
	s.mu.Unlock()

	for i, k := range keys {
		if !fn(k, vals[i]) {
			return
		}
	}
}

// InsertMax stores val under key if the key is absent or val is greater than
// the stored value. Used for high-water marks keyed by resource id.
func InsertMax[K, V cmp.Ordered](s *SharedMap[K, V], key K, val V) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.m[key]; ok && cur >= val {
		return
	}
	s.m[key] = val
}
