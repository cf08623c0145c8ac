package worker

import "strings"

// Operation is the verb of an Aquarium event topic.
type Operation string

// Operations the processor knows about.
const (
	OpCreated    Operation = "created"
	OpUpdated    Operation = "updated"
	OpAssigned   Operation = "assigned"
	OpUnassigned Operation = "unassigned"
)

// EntityKind is the item type an Aquarium event is about.
type EntityKind string

// Entity kinds the processor knows about.
const (
	KindAsset    EntityKind = "Asset"
	KindShot     EntityKind = "Shot"
	KindSequence EntityKind = "Sequence"
	KindEpisode  EntityKind = "Episode"
	KindTask     EntityKind = "Task"
	KindUser     EntityKind = "User"
	KindProject  EntityKind = "Project"
)

// Action is what the processor does with a leeched event.
type Action string

// Actions.
const (
	ActionIgnore         Action = "ignore"
	ActionSyncFolder     Action = "sync_folder"
	ActionSyncTask       Action = "sync_task"
	ActionRefreshProject Action = "refresh_project"
)

// Route is the key of the dispatch table.
type Route struct {
	Operation Operation
	Kind      EntityKind
}

var routes = map[Route]Action{
	{OpCreated, KindAsset}:    ActionSyncFolder,
	{OpUpdated, KindAsset}:    ActionSyncFolder,
	{OpCreated, KindShot}:     ActionSyncFolder,
	{OpUpdated, KindShot}:     ActionSyncFolder,
	{OpCreated, KindSequence}: ActionSyncFolder,
	{OpUpdated, KindSequence}: ActionSyncFolder,
	{OpCreated, KindEpisode}:  ActionSyncFolder,
	{OpUpdated, KindEpisode}:  ActionSyncFolder,
	{OpCreated, KindTask}:     ActionSyncTask,
	{OpUpdated, KindTask}:     ActionSyncTask,
	{OpAssigned, KindUser}:    ActionSyncTask,
	{OpUnassigned, KindUser}:  ActionSyncTask,
	{OpUpdated, KindProject}:  ActionRefreshProject,
}

// ParseTopic splits "item.<op>.<Type>" and "user.<op>" topics.
func ParseTopic(topic string) (Route, bool) {
	parts := strings.Split(topic, ".")
	switch {
	case len(parts) == 3 && parts[0] == "item":
		return Route{Operation: Operation(parts[1]), Kind: EntityKind(parts[2])}, true
	case len(parts) == 2 && parts[0] == "user":
		return Route{Operation: Operation(parts[1]), Kind: KindUser}, true
	}
	return Route{}, false
}

// Resolve returns the action for an Aquarium topic. Unknown topics are
// ignored.
func Resolve(topic string) Action {
	route, ok := ParseTopic(topic)
	if !ok {
		return ActionIgnore
	}
	if action, ok := routes[route]; ok {
		return action
	}
	return ActionIgnore
}
