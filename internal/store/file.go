package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// subscriberBuffer is the per-subscriber channel capacity. Events beyond
// a full buffer are dropped for that subscriber rather than blocking the
// store.
const subscriberBuffer = 100

// FileStore is a [Store] backed by a single flat JSON array on disk.
//
// The on-disk format mirrors how the original demo kept deployment
// records: one array of records under a fixed location. All records are
// held in memory; the file is rewritten atomically (temp file + rename)
// on every mutation. An empty path disables persistence entirely,
// yielding a purely in-memory store.
type FileStore struct {
	path string

	mu          sync.RWMutex
	deployments map[string]Deployment

	subMu       sync.RWMutex
	subscribers map[chan Event]struct{}
}

// NewFileStore creates a [FileStore] persisted at path.
//
// An existing file is loaded; a missing file is treated as an empty
// store. Pass an empty path for an in-memory store with no persistence.
func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path:        path,
		deployments: make(map[string]Deployment),
		subscribers: make(map[chan Event]struct{}),
	}

	if path != "" {
		if err := fs.load(); err != nil {
			return nil, err
		}
	}

	return fs, nil
}

// Add stores a deployment record and notifies all subscribers.
//
// Records are keyed by ID, so subsequent adds with the same ID replace
// the previous value. Returns an error if the record has no ID or if
// persisting the store fails; on a persist failure the in-memory state
// is left unchanged.
func (f *FileStore) Add(d Deployment) error {
	if d.ID == "" {
		return errors.New("deployment ID cannot be empty")
	}

	f.mu.Lock()
	previous, existed := f.deployments[d.ID]
	f.deployments[d.ID] = d
	if err := f.persistLocked(); err != nil {
		// roll back so memory and disk stay consistent
		if existed {
			f.deployments[d.ID] = previous
		} else {
			delete(f.deployments, d.ID)
		}
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()

	f.notifySubscribers(Event{Kind: EventAdded, Deployment: d})
	return nil
}

// Get returns the record with the given ID.
func (f *FileStore) Get(id string) (Deployment, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	d, ok := f.deployments[id]
	return d, ok
}

// List returns a snapshot of all records ordered by creation time,
// oldest first, with ID as a tiebreaker for records created in the same
// instant.
func (f *FileStore) List() []Deployment {
	f.mu.RLock()
	result := make([]Deployment, 0, len(f.deployments))
	for _, d := range f.deployments {
		result = append(result, d)
	}
	f.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result
}

// Remove deletes the record with the given ID and notifies subscribers.
//
// Reports false with a nil error when no such record exists. On a
// persist failure the record is restored and the error returned.
func (f *FileStore) Remove(id string) (bool, error) {
	f.mu.Lock()
	d, ok := f.deployments[id]
	if !ok {
		f.mu.Unlock()
		return false, nil
	}
	delete(f.deployments, id)
	if err := f.persistLocked(); err != nil {
		f.deployments[id] = d
		f.mu.Unlock()
		return false, err
	}
	f.mu.Unlock()

	f.notifySubscribers(Event{Kind: EventRemoved, Deployment: d})
	return true, nil
}

// Subscribe creates a new subscription and returns a channel for
// receiving store events.
//
// The returned channel has a buffer of 100 events. If the buffer fills
// (slow consumer), new events are dropped for this subscriber.
//
// Caller must call [FileStore.Unsubscribe] when done to prevent resource
// leaks.
func (f *FileStore) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	f.subMu.Lock()
	f.subscribers[ch] = struct{}{}
	f.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// After calling Unsubscribe, the channel will be closed and no further
// events will be sent. Safe to call multiple times or with an unknown
// channel.
func (f *FileStore) Unsubscribe(ch <-chan Event) {
	f.subMu.Lock()
	defer f.subMu.Unlock()

	for subCh := range f.subscribers {
		if subCh == ch {
			delete(f.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends the event to all active subscribers.
//
// This is non-blocking: if a subscriber's channel buffer is full, the
// event is dropped for that subscriber rather than blocking the mutation
// path.
func (f *FileStore) notifySubscribers(ev Event) {
	f.subMu.RLock()
	defer f.subMu.RUnlock()

	for ch := range f.subscribers {
		select {
		case ch <- ev:
		default:
			// subscriber is slow, drop the event
		}
	}
}

// load reads the flat JSON array from disk into memory.
func (f *FileStore) load() error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read deployments file: %w", err)
	}

	var records []Deployment
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to parse deployments file %s: %w", f.path, err)
	}

	for _, d := range records {
		if d.ID == "" {
			continue
		}
		f.deployments[d.ID] = d
	}
	return nil
}

// persistLocked writes the store as a flat JSON array via a temp file
// and rename, so readers never observe a partially written file.
// Caller must hold f.mu. No-op when persistence is disabled.
func (f *FileStore) persistLocked() error {
	if f.path == "" {
		return nil
	}

	records := make([]Deployment, 0, len(f.deployments))
	for _, d := range f.deployments {
		records = append(records, d)
	}
	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.Before(records[j].CreatedAt)
		}
		return records[i].ID < records[j].ID
	})

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode deployments: %w", err)
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, ".deployments-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write deployments file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close deployments file: %w", err)
	}

	if err := os.Rename(tmpName, f.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace deployments file: %w", err)
	}
	return nil
}
