// Package anatomy derives an AYON project anatomy (attributes, statuses and
// task types) from an Aquarium project, its Properties items and the tasks
// of its templates.
package anatomy

import (
	"strconv"
	"strings"

	"github.com/okian/aqsync/internal/domain/canonical"
	"github.com/okian/aqsync/internal/domain/model"
)

const defaultTaskIcon = "task_alt"

// TaskDefault overrides the short name and icon of a task type by name.
type TaskDefault struct {
	Name      string
	ShortName string
	Icon      string
}

// StatusDefault overrides the state and icon of a status by short name.
type StatusDefault struct {
	ShortName string
	State     string
	Icon      string
}

// Settings are the studio defaults applied while parsing.
type Settings struct {
	Tasks    []TaskDefault
	Statuses []StatusDefault
}

// TemplateTask is a task found under an Aquarium template.
type TemplateTask struct {
	Name      string `json:"name"`
	ShortName string `json:"shortName"`
	Icon      string `json:"icon"`
}

// AquariumStatus is an entry of a Properties item's tasks_status list.
type AquariumStatus struct {
	Status     string   `json:"status"`
	ShortName  string   `json:"shortName,omitempty"`
	Color      string   `json:"color,omitempty"`
	Completion *float64 `json:"completion,omitempty"`
}

// DefaultAquariumStatuses is used when a project has no Properties.
var DefaultAquariumStatuses = []AquariumStatus{
	{Status: "TO DO", Completion: ptr(0)},
	{Status: "WORK IN PROGRESS", Completion: ptr(0.5)},
	{Status: "REVIEW", Completion: ptr(0.8)},
	{Status: "DONE", Completion: ptr(1)},
	{Status: "BLOCKED", Completion: ptr(-1)},
}

func ptr(f float64) *float64 { return &f }

// Build assembles a full anatomy.
func Build(project model.Item, properties []map[string]any, tasks []TemplateTask, settings Settings) model.Anatomy {
	return model.Anatomy{
		Attributes: ParseAttrib(project.Data, properties),
		Statuses:   ParseStatuses(properties, settings.Statuses),
		TaskTypes:  ParseTaskTypes(tasks, settings.Tasks),
	}
}

// ParseAttrib maps project data and Properties values to AYON project
// attributes. Without properties the result is empty. Unparsable values are
// skipped.
func ParseAttrib(data model.ItemData, properties []map[string]any) map[string]any {
	result := map[string]any{}
	if properties == nil {
		return result
	}
	if data.Description != "" {
		result["description"] = data.Description
	}
	if v, ok := data.Extra["startdate"]; ok {
		result["startDate"] = v
	}
	if v, ok := data.Extra["deadline"]; ok {
		result["endDate"] = v
	}

	for _, props := range properties {
		for key, value := range props {
			if isEmpty(value) {
				continue
			}
			switch key {
			case "fps":
				if f, ok := toFloat(value); ok {
					result["fps"] = f
				}
			case "frameStart", "frameEnd":
				if n, ok := toInt(value); ok {
					result[key] = n
				}
			case "resolution":
				s, ok := value.(string)
				if !ok {
					continue
				}
				w, h, found := strings.Cut(s, "x")
				if !found {
					continue
				}
				width, errW := strconv.Atoi(strings.TrimSpace(w))
				height, errH := strconv.Atoi(strings.TrimSpace(h))
				if errW != nil || errH != nil {
					continue
				}
				result["resolutionWidth"] = width
				result["resolutionHeight"] = height
			}
		}
	}
	return result
}

// ParseStatuses collects the distinct task statuses of all Properties items
// and maps them to AYON statuses. A settings entry with a matching short name
// decides state and icon, otherwise the state follows the completion.
func ParseStatuses(properties []map[string]any, defaults []StatusDefault) []model.Status {
	statuses := collectStatuses(properties)
	if len(properties) == 0 {
		statuses = DefaultAquariumStatuses
	}

	result := make([]model.Status, 0, len(statuses))
	for _, aq := range statuses {
		shortName := strings.ToLower(aq.Status)
		lookup := aq.ShortName
		if lookup == "" {
			lookup = shortName
		}

		status := model.Status{
			Name:      aq.Status,
			ShortName: shortName,
			State:     model.StateNotStarted,
			Icon:      defaultTaskIcon,
		}
		found := false
		for _, d := range defaults {
			if d.ShortName == lookup {
				found = true
				status.State = d.State
				status.Icon = d.Icon
			}
		}
		if !found && aq.Completion != nil {
			status.State = stateFor(*aq.Completion)
		}
		result = append(result, status)
	}
	return result
}

func stateFor(completion float64) string {
	switch {
	case completion < 0:
		return model.StateBlocked
	case completion == 0:
		return model.StateNotStarted
	case completion < 1:
		return model.StateInProgress
	default:
		return model.StateDone
	}
}

func collectStatuses(properties []map[string]any) []AquariumStatus {
	var out []AquariumStatus
	seen := map[string]struct{}{}
	for _, props := range properties {
		list, ok := props["tasks_status"].([]any)
		if !ok {
			continue
		}
		for _, raw := range list {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			name := stringify(entry["status"])
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			status := AquariumStatus{Status: name}
			status.ShortName, _ = entry["shortName"].(string)
			status.Color, _ = entry["color"].(string)
			if c, ok := toFloat(entry["completion"]); ok {
				status.Completion = &c
			}
			out = append(out, status)
		}
	}
	return out
}

// ParseTaskTypes maps template tasks to AYON task types, one per distinct
// name. Settings defaults win. Otherwise the task's own short name is kept or
// derived from its name, with the generic task icon.
func ParseTaskTypes(tasks []TemplateTask, defaults []TaskDefault) []model.TaskType {
	result := make([]model.TaskType, 0, len(tasks))
	seen := map[string]struct{}{}
	for _, task := range tasks {
		if _, dup := seen[task.Name]; dup {
			continue
		}
		seen[task.Name] = struct{}{}

		tt := model.TaskType{Name: task.Name}
		found := false
		for _, d := range defaults {
			if strings.EqualFold(d.Name, task.Name) {
				found = true
				tt.ShortName = d.ShortName
				tt.Icon = d.Icon
			}
		}
		if !found {
			tt.ShortName = task.ShortName
			if tt.ShortName == "" {
				tt.ShortName = canonical.ShortName(canonical.RemoveAccents(strings.ToLower(task.Name)))
			}
			tt.Icon = defaultTaskIcon
		}
		result = append(result, tt)
	}
	return result
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case float64:
		return t == 0
	case int:
		return t == 0
	case bool:
		return !t
	}
	return false
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		return int(t), t == float64(int(t))
	case int:
		return t, true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return ""
}
