package store

import "time"

// Deployment is one hosted repository deployment record.
//
// Deployment is the storage representation, optimized for JSON
// serialization: records are persisted as a flat JSON array and served
// verbatim by the deployments API.
type Deployment struct {
	// ID uniquely identifies the record.
	ID string `json:"id"`

	// Repo is the source repository URL the deployment was created from.
	Repo string `json:"repo"`

	// CID is the content identifier assigned to the deployed snapshot.
	CID string `json:"cid"`

	// BlockID is the block the deployment was anchored to at creation.
	BlockID string `json:"block_id"`

	// Category is the hosting category label.
	Category string `json:"category"`

	// Status is the presentational deployment state (e.g. "deployed").
	Status string `json:"status"`

	// CreatedAt is the record creation timestamp.
	CreatedAt time.Time `json:"created_at"`
}

// EventKind distinguishes the operations announced to subscribers.
type EventKind string

const (
	// EventAdded announces a newly stored deployment.
	EventAdded EventKind = "added"

	// EventRemoved announces a deleted deployment.
	EventRemoved EventKind = "removed"
)

// Event is one deployment store change delivered to subscribers.
type Event struct {
	Kind       EventKind  `json:"kind"`
	Deployment Deployment `json:"deployment"`
}

// Store defines the interface for keeping and subscribing to deployment
// records.
//
// Store implementations must be safe for concurrent access. The pub/sub
// mechanism allows updates to be pushed to connected clients (e.g. via
// Server-Sent Events).
type Store interface {
	// Add stores a deployment record, replacing any record with the
	// same ID, and notifies subscribers.
	Add(d Deployment) error

	// Get returns the record with the given ID.
	Get(id string) (Deployment, bool)

	// List returns all records ordered by creation time (oldest first).
	// The returned slice is a snapshot; modifications do not affect the
	// store.
	List() []Deployment

	// Remove deletes the record with the given ID and notifies
	// subscribers. Reports whether a record was removed.
	Remove(id string) (bool, error)

	// Subscribe returns a channel that receives store events.
	// The returned channel has a buffer; slow consumers may miss events.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan Event

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan Event)
}
