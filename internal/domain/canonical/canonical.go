// Package canonical turns Aquarium items into the AYON folder and task
// shapes consumed by the reconciler. Everything here is pure.
package canonical

import (
	"strings"

	"github.com/okian/aqsync/internal/domain/model"
)

// UserDirectory maps a user email to an AYON user name. Build one per sync
// run with NewUserDirectory and pass it down.
type UserDirectory map[string]string

// NewUserDirectory indexes users by email. Users without an email are skipped.
func NewUserDirectory(users []model.User) UserDirectory {
	dir := make(UserDirectory, len(users))
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		dir[strings.ToLower(u.Email)] = u.Name
	}
	return dir
}

// Resolve maps emails to user names in order. Unknown emails are dropped.
// The result is never nil.
func (d UserDirectory) Resolve(emails []string) []string {
	out := make([]string, 0, len(emails))
	seen := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		name, ok := d[strings.ToLower(email)]
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// Folder converts an Aquarium item to a canonical folder.
func Folder(item model.Item) model.Folder {
	name, label := NameAndLabel(item.Data.Name, item.Key)
	f := model.Folder{
		Name:       name,
		Label:      label,
		FolderType: item.Type,
		Status:     item.Data.Status,
		Tags:       item.Data.Tags,
		Attrib:     map[string]any{},
		Data:       model.EntityData{AquariumKey: item.Key},
	}
	if item.Data.Description != "" {
		f.Attrib["description"] = item.Data.Description
	}
	return f
}

// Task converts an Aquarium task and the emails of its assignees to a
// canonical task.
func Task(item model.Item, emails []string, users UserDirectory) model.Task {
	name, label := NameAndLabel(item.Data.Name, item.Key)
	t := model.Task{
		Name:      name,
		Label:     label,
		Status:    item.Data.Status,
		Tags:      item.Data.Tags,
		Assignees: users.Resolve(emails),
		Attrib:    map[string]any{},
		Data:      model.EntityData{AquariumKey: item.Key},
	}
	if item.Data.Description != "" {
		t.Attrib["description"] = item.Data.Description
	}
	return t
}

// NameAndLabel returns the AYON name and label of an Aquarium name. The
// label keeps the raw name. The fallback is used when nothing of the name
// survives slugification.
func NameAndLabel(aquariumName, fallback string) (name, label string) {
	name = Slug(aquariumName)
	if name == "" {
		name = Slug(fallback)
	}
	return name, aquariumName
}
