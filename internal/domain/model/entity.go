package model

// Status states understood by AYON.
const (
	StateNotStarted = "not_started"
	StateInProgress = "in_progress"
	StateDone       = "done"
	StateBlocked    = "blocked"
)

// FolderEntity is a persisted AYON folder.
type FolderEntity struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Label      string         `json:"label"`
	FolderType string         `json:"folderType"`
	ParentID   string         `json:"parentId,omitempty"`
	Status     string         `json:"status,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Attrib     map[string]any `json:"attrib"`
	// OwnAttrib lists the attribute keys set by sync.
	OwnAttrib []string   `json:"ownAttrib"`
	Data      EntityData `json:"data"`
}

// TaskEntity is a persisted AYON task.
type TaskEntity struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Label     string         `json:"label"`
	TaskType  string         `json:"taskType"`
	FolderID  string         `json:"folderId"`
	Status    string         `json:"status,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Assignees []string       `json:"assignees"`
	Attrib    map[string]any `json:"attrib"`
	OwnAttrib []string       `json:"ownAttrib"`
	Data      EntityData     `json:"data"`
}

// TaskType is an AYON task type of a project anatomy.
type TaskType struct {
	Name      string `json:"name" yaml:"name"`
	ShortName string `json:"shortName" yaml:"shortName"`
	Icon      string `json:"icon" yaml:"icon"`
}

// Status is an AYON status of a project anatomy.
type Status struct {
	Name      string `json:"name" yaml:"name"`
	ShortName string `json:"shortName" yaml:"shortName"`
	State     string `json:"state" yaml:"state"`
	Icon      string `json:"icon" yaml:"icon"`
	Color     string `json:"color" yaml:"color"`
}

// Anatomy is the part of a project definition derived from Aquarium.
type Anatomy struct {
	Attributes map[string]any `json:"attributes" yaml:"attributes"`
	Statuses   []Status       `json:"statuses" yaml:"statuses"`
	TaskTypes  []TaskType     `json:"task_types" yaml:"task_types"`
}

// Project is an AYON project.
type Project struct {
	Name string `json:"name"`
	Code string `json:"code"`
	// AquariumProjectKey is empty when the project is not paired.
	AquariumProjectKey string         `json:"aquariumProjectKey,omitempty"`
	TaskTypes          []TaskType     `json:"taskTypes"`
	Statuses           []Status       `json:"statuses"`
	Attrib             map[string]any `json:"attrib"`
}

// Pairing links an Aquarium project to an AYON project.
type Pairing struct {
	AquariumProjectKey  string `json:"aquariumProjectKey"`
	AquariumProjectName string `json:"aquariumProjectName"`
	AquariumProjectCode string `json:"aquariumProjectCode,omitempty"`
	// AyonProjectName is empty when the project is not paired.
	AyonProjectName string `json:"ayonProjectName,omitempty"`
}

// Paired reports whether the pairing points to an AYON project.
func (p Pairing) Paired() bool { return p.AyonProjectName != "" }

// User is an AYON user.
type User struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// HierarchyEntry is one AYON folder of a flat hierarchy listing.
type HierarchyEntry struct {
	ID        string   `json:"id"`
	ParentID  string   `json:"parentId,omitempty"`
	Type      string   `json:"folderType"`
	Name      string   `json:"name"`
	Label     string   `json:"label"`
	TaskNames []string `json:"taskNames,omitempty"`
	HasTasks  bool     `json:"hasTasks"`
}
