// Package queue is the durable job store shared by the leecher, the sync
// trigger and the processor.
//
// Source events (sync triggers, project creations, leeched Aquarium events)
// are dispatched with a unique hash. The processor enrolls them one at a
// time into processing jobs that depend on their source. Nothing is ever
// deleted.
package queue

import (
	"context"
	"encoding/json"

	"github.com/okian/aqsync/internal/domain/model"
)

// Store is the job store boundary.
type Store interface {
	// Dispatch records a source event and returns its id. A hash that is
	// already stored yields ErrDuplicateHash.
	Dispatch(ctx context.Context, req DispatchRequest) (string, error)

	// Enroll picks the oldest source event of req.Source without a live
	// processing job and returns the processing job created for it. A
	// restarted job is handed out again. Nil means there is nothing to do.
	Enroll(ctx context.Context, req EnrollRequest) (*model.Event, error)

	Get(ctx context.Context, id string) (*model.Event, error)

	// Update applies mutate to the stored event and persists the result.
	// Id, hash, topic and created time are kept.
	Update(ctx context.Context, id string, mutate func(*model.Event)) (*model.Event, error)

	// FindByHash returns nil and no error when no event has the hash.
	FindByHash(ctx context.Context, hash string) (*model.Event, error)

	// Restart marks the event and its processing jobs restarted with zero
	// retries.
	Restart(ctx context.Context, id string) error

	// Recover moves pending and in-progress processing jobs to restarted
	// and returns how many moved.
	Recover(ctx context.Context) (int, error)

	List(ctx context.Context, filter ListFilter) ([]model.Event, error)

	// View joins a source event with the status of its processing job.
	View(ctx context.Context, id string) (*model.EventView, error)

	// Counts returns the number of events per status. An empty topic
	// counts every event.
	Counts(ctx context.Context, topic string) (map[model.JobStatus]int, error)

	Close() error
}

// DispatchRequest describes a new source event.
type DispatchRequest struct {
	Topic       string
	Hash        string
	Sender      string
	Project     string
	User        string
	Description string
	Summary     map[string]any
	Payload     any
	// Status defaults to finished: a source event is a record, the work is
	// tracked by its processing job.
	Status model.JobStatus
}

// EnrollRequest describes what the processor wants next.
type EnrollRequest struct {
	Source string
	Target string
	Sender string
	// Sequential refuses to enroll while a job of Target is pending or in
	// progress.
	Sequential bool
}

// ListFilter narrows List. Zero values match everything. Results are
// newest first.
type ListFilter struct {
	Topic  string
	Status model.JobStatus
	Limit  int
}

// JobHash is the hash of the processing job of a source event.
func JobHash(target, sourceID string) string {
	return target + ":" + sourceID
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return raw, nil
}
