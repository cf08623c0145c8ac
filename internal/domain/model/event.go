package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job store topics.
const (
	TopicSyncProject   = "aquarium.sync_project"
	TopicProjectCreate = "aquarium.project_create"
	TopicLeech         = "aquarium.leech"
	TopicProcess       = "aquarium.process"
)

// JobStatus is the lifecycle state of an event or job.
type JobStatus string

// Job states.
const (
	StatusPending    JobStatus = "pending"
	StatusInProgress JobStatus = "in_progress"
	StatusFinished   JobStatus = "finished"
	StatusRestarted  JobStatus = "restarted"
)

// Statuses lists every job state.
var Statuses = []JobStatus{StatusPending, StatusInProgress, StatusFinished, StatusRestarted}

// Event is a durable job store record. Source events (sync triggers,
// project creations, leeched Aquarium events) and the processing jobs that
// depend on them share this shape.
type Event struct {
	ID          string          `json:"id"`
	Hash        string          `json:"hash"`
	Topic       string          `json:"topic"`
	Sender      string          `json:"sender,omitempty"`
	Project     string          `json:"project,omitempty"`
	User        string          `json:"user,omitempty"`
	Description string          `json:"description"`
	Status      JobStatus       `json:"status"`
	Retries     int             `json:"retries"`
	DependsOn   string          `json:"dependsOn,omitempty"`
	Summary     map[string]any  `json:"summary,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Progress is the per type entry of a full sync summary.
type Progress struct {
	Count       int     `json:"count"`
	Progression float64 `json:"progression"`
}

// EventView is a sync event joined with the status of its processing job.
// Status is empty while no job was enrolled.
type EventView struct {
	ID          string         `json:"id"`
	ProjectName string         `json:"projectName"`
	Summary     map[string]any `json:"summary"`
	Status      JobStatus      `json:"status,omitempty"`
}

// SyncPayload is the payload of an aquarium.sync_project event.
type SyncPayload struct {
	AquariumProjectKey string `json:"aquariumProjectKey"`
}

// CreatePayload is the payload of an aquarium.project_create event.
type CreatePayload struct {
	AquariumProjectName string `json:"aquariumProjectName"`
}

// SourceEvent is an event of the Aquarium live stream. Fields not listed
// here are kept in Extra so a forwarded event is stored as it was received.
type SourceEvent struct {
	Key   string          `json:"_key"`
	Topic string          `json:"topic"`
	Data  SourceEventData `json:"data"`
	// Path is leaf-first: the event item first, its project last.
	Path    Path                       `json:"path,omitempty"`
	Project string                     `json:"project,omitempty"`
	Extra   map[string]json.RawMessage `json:"-"`
}

// SourceEventData is the data of a live event. Only the item is read; the
// rest (user, edge, ...) rides along in Extra.
type SourceEventData struct {
	Item  Item                       `json:"item"`
	Extra map[string]json.RawMessage `json:"-"`
}

// MarshalJSON writes the known fields and then Extra.
func (e SourceEvent) MarshalJSON() ([]byte, error) {
	type plain SourceEvent
	known, err := json.Marshal(plain(e))
	if err != nil {
		return nil, err
	}
	return withExtra(known, e.Extra)
}

// UnmarshalJSON decodes the known fields and moves everything else to Extra.
func (e *SourceEvent) UnmarshalJSON(raw []byte) error {
	type plain SourceEvent
	var p plain
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("source event: %w", err)
	}
	extra, err := extraFields(raw, "_key", "topic", "data", "path", "project")
	if err != nil {
		return fmt.Errorf("source event: %w", err)
	}
	p.Extra = extra
	*e = SourceEvent(p)
	return nil
}

// MarshalJSON writes the item and then Extra.
func (d SourceEventData) MarshalJSON() ([]byte, error) {
	type plain SourceEventData
	known, err := json.Marshal(plain(d))
	if err != nil {
		return nil, err
	}
	return withExtra(known, d.Extra)
}

// UnmarshalJSON decodes the item and moves everything else to Extra.
func (d *SourceEventData) UnmarshalJSON(raw []byte) error {
	type plain SourceEventData
	var p plain
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("source event data: %w", err)
	}
	extra, err := extraFields(raw, "item")
	if err != nil {
		return fmt.Errorf("source event data: %w", err)
	}
	p.Extra = extra
	*d = SourceEventData(p)
	return nil
}

// withExtra adds the extra fields to an encoded object. Known fields win.
func withExtra(known []byte, extra map[string]json.RawMessage) ([]byte, error) {
	if len(extra) == 0 {
		return known, nil
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(known, &out); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// extraFields returns the fields of an encoded object not named in known.
func extraFields(raw []byte, known ...string) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	for _, k := range known {
		delete(fields, k)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}

// ProjectKey returns the Aquarium project the event belongs to.
func (e SourceEvent) ProjectKey() string {
	if e.Project != "" {
		return e.Project
	}
	if project, ok := e.Path.Project(); ok {
		return project.Key
	}
	return ""
}

// Subject returns the item the event is about.
func (e SourceEvent) Subject() Item {
	if self, ok := e.Path.Self(); ok {
		return self
	}
	return e.Data.Item
}
