package memory

import (
	"context"
	"sort"
	"sync"

	"solana-wallet-ledger/internal/storage"
)

type failedKey struct {
	source    string
	signature string
}

// FailedSignatureStore is an in-memory implementation of storage.FailedSignatureStore.
type FailedSignatureStore struct {
	mu   sync.Mutex
	data map[failedKey]*storage.FailedSignature
}

// NewFailedSignatureStore creates a new in-memory failed signature queue.
func NewFailedSignatureStore() *FailedSignatureStore {
	return &FailedSignatureStore{data: make(map[failedKey]*storage.FailedSignature)}
}

// Add enqueues a signature. Adding a queued signature is a no-op.
func (s *FailedSignatureStore) Add(_ context.Context, f *storage.FailedSignature) error {
	if f == nil || f.Source == "" || f.Signature == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	k := failedKey{f.Source, f.Signature}
	if _, exists := s.data[k]; exists {
		return nil
	}
	entry := *f
	if entry.Attempts < 1 {
		entry.Attempts = 1
	}
	s.data[k] = &entry
	return nil
}

// ListDue returns up to limit signatures of source, oldest slot first.
func (s *FailedSignatureStore) ListDue(_ context.Context, source string, limit int) ([]*storage.FailedSignature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*storage.FailedSignature
	for k, f := range s.data {
		if k.source == source {
			entry := *f
			result = append(result, &entry)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Slot != result[j].Slot {
			return result[i].Slot < result[j].Slot
		}
		return result[i].Signature < result[j].Signature
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Resolve removes a signature from the queue.
func (s *FailedSignatureStore) Resolve(_ context.Context, source, signature string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, failedKey{source, signature})
	return nil
}

// Bump records a failed attempt and drops the entry once attempts are exhausted.
func (s *FailedSignatureStore) Bump(_ context.Context, source, signature, lastError string, nowMs int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := failedKey{source, signature}
	f, ok := s.data[k]
	if !ok {
		return false, storage.ErrNotFound
	}
	f.Attempts++
	f.LastError = lastError
	f.LastAttemptAt = nowMs
	if f.Attempts >= storage.MaxSignatureAttempts {
		delete(s.data, k)
		return true, nil
	}
	return false, nil
}

// Len returns the number of queued signatures.
func (s *FailedSignatureStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// Verify interface compliance at compile time.
var _ storage.FailedSignatureStore = (*FailedSignatureStore)(nil)
