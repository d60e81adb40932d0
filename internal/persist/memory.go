package persist

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStorage is an in-process Storage. It counts writes so callers can
// observe how often the write-back queue reaches durable storage.
type MemoryStorage struct {
	mu      sync.Mutex
	data    map[string][]byte
	log     []LogEntry
	seq     int64
	gets    map[string]int
	commits map[string]int

	// FailCommit, when set, is consulted before every commit.
	FailCommit func(key string) error
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		data:    make(map[string][]byte),
		gets:    make(map[string]int),
		commits: make(map[string]int),
	}
}

func (m *MemoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets[key]++
	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryStorage) List(_ context.Context, prefix string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte)
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

func (m *MemoryStorage) AppendLog(_ context.Context, key string, value []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.log = append(m.log, LogEntry{Seq: m.seq, Key: key, Value: append([]byte(nil), value...)})
	return m.seq, nil
}

func (m *MemoryStorage) Commit(_ context.Context, key string, value []byte, upTo int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCommit != nil {
		if err := m.FailCommit(key); err != nil {
			return err
		}
	}
	m.commits[key]++
	if value == nil {
		delete(m.data, key)
	} else {
		m.data[key] = append([]byte(nil), value...)
	}
	kept := m.log[:0]
	for _, e := range m.log {
		if e.Key == key && e.Seq <= upTo {
			continue
		}
		kept = append(kept, e)
	}
	m.log = kept
	return nil
}

func (m *MemoryStorage) PendingLog(_ context.Context) ([]LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]LogEntry(nil), m.log...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *MemoryStorage) Close() error { return nil }

// Put stores a value directly, bypassing the log.
func (m *MemoryStorage) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
}

// Gets returns how many times key was read.
func (m *MemoryStorage) Gets(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets[key]
}

// Commits returns how many times key was written.
func (m *MemoryStorage) Commits(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commits[key]
}

// LogLen returns the number of unconfirmed log entries.
func (m *MemoryStorage) LogLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.log)
}
