package pkg

import "sync"

// SyncMap is a typed wrapper over sync.Map with string keys.
type SyncMap[V any] struct {
	m sync.Map
}

func (s *SyncMap[V]) Load(key string) (V, bool) {
	value, ok := s.m.Load(key)
	if !ok {
		var zero V
		return zero, false
	}
	return value.(V), true
}

func (s *SyncMap[V]) Store(key string, value V) {
	s.m.Store(key, value)
}

func (s *SyncMap[V]) LoadOrStore(key string, value V) (V, bool) {
	actual, loaded := s.m.LoadOrStore(key, value)
	return actual.(V), loaded
}

func (s *SyncMap[V]) Delete(key string) {
	s.m.Delete(key)
}

func (s *SyncMap[V]) LoadAndDelete(key string) (V, bool) {
	value, ok := s.m.LoadAndDelete(key)
	if !ok {
		var zero V
		return zero, false
	}
	return value.(V), true
}

func (s *SyncMap[V]) Range(f func(key string, value V) bool) {
	s.m.Range(func(key, value any) bool {
		return f(key.(string), value.(V))
	})
}
