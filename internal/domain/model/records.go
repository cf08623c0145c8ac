package model

// Folder types handled by a full project sync, in the order they are synced.
// Parents are always visited before children because of this order.
var SyncOrder = []string{"Library", "Asset", "Episode", "Sequence", "Shot"}

// EntityData is the data blob stored on AYON entities.
type EntityData struct {
	AquariumKey string `json:"aquariumKey,omitempty"`
}

// Folder is the canonical shape of an Aquarium item headed to AYON.
type Folder struct {
	Name       string         `json:"name"`
	Label      string         `json:"label"`
	FolderType string         `json:"folderType,omitempty"`
	ParentID   string         `json:"parentId,omitempty"`
	Status     string         `json:"status,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Attrib     map[string]any `json:"attrib"`
	Data       EntityData     `json:"data"`
}

// Task is the canonical shape of an Aquarium task headed to AYON.
type Task struct {
	Name      string         `json:"name"`
	Label     string         `json:"label"`
	TaskType  string         `json:"taskType,omitempty"`
	FolderID  string         `json:"folderId,omitempty"`
	Status    string         `json:"status,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
	Assignees []string       `json:"assignees"`
	Attrib    map[string]any `json:"attrib"`
	Data      EntityData     `json:"data"`
}

// TaskRecord is a canonical task with its leaf-first path.
type TaskRecord struct {
	Task Task `json:"task"`
	Path Path `json:"path"`
}

// FolderRecord is a canonical folder, its direct tasks and its leaf-first path.
type FolderRecord struct {
	Folder Folder       `json:"folder"`
	Tasks  []TaskRecord `json:"tasks,omitempty"`
	Path   Path         `json:"path"`
}

// Batch groups folder records by Aquarium item type.
type Batch map[string][]FolderRecord

// Len returns the number of folder records in the batch.
func (b Batch) Len() int {
	n := 0
	for _, records := range b {
		n += len(records)
	}
	return n
}
