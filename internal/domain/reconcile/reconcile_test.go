package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/internal/domain/reconcile"
	"github.com/okian/aqsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithLevel("error")); err != nil {
		panic(err)
	}
}

type fakeEntities struct {
	project     *model.Project
	folders     map[string]*model.FolderEntity
	tasks       map[string]*model.TaskEntity
	folderSaves int
	taskSaves   int
	saveErr     error
	seq         int
}

func newFakeEntities() *fakeEntities {
	return &fakeEntities{
		project: &model.Project{
			Name:      "demo",
			TaskTypes: []model.TaskType{{Name: "Compositing"}, {Name: "Animation"}},
			Statuses:  []model.Status{{Name: "Not ready"}, {Name: "Done"}},
		},
		folders: map[string]*model.FolderEntity{},
		tasks:   map[string]*model.TaskEntity{},
	}
}

func (f *fakeEntities) GetProject(_ context.Context, name string) (*model.Project, error) {
	if f.project == nil || f.project.Name != name {
		return nil, nil
	}
	return f.project, nil
}

func (f *fakeEntities) FolderByKey(_ context.Context, _, key string) (*model.FolderEntity, error) {
	e, ok := f.folders[key]
	if !ok {
		return nil, nil
	}
	cp := *e
	cp.Attrib = copyMap(e.Attrib)
	cp.OwnAttrib = append([]string(nil), e.OwnAttrib...)
	return &cp, nil
}

func (f *fakeEntities) TaskByKey(_ context.Context, _, key string) (*model.TaskEntity, error) {
	e, ok := f.tasks[key]
	if !ok {
		return nil, nil
	}
	cp := *e
	cp.Attrib = copyMap(e.Attrib)
	return &cp, nil
}

func (f *fakeEntities) SaveFolder(_ context.Context, _ string, e *model.FolderEntity) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.folderSaves++
	if e.ID == "" {
		f.seq++
		e.ID = fmt.Sprintf("folder-%d", f.seq)
	}
	cp := *e
	f.folders[e.Data.AquariumKey] = &cp
	return nil
}

func (f *fakeEntities) SaveTask(_ context.Context, _ string, e *model.TaskEntity) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.taskSaves++
	if e.ID == "" {
		f.seq++
		e.ID = fmt.Sprintf("task-%d", f.seq)
	}
	cp := *e
	f.tasks[e.Data.AquariumKey] = &cp
	return nil
}

func copyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func projectPath(keys ...string) model.Path {
	path := make(model.Path, 0, len(keys))
	for _, k := range keys {
		path = append(path, model.Item{Key: k})
	}
	return path
}

func seq01() model.Folder {
	return model.Folder{
		Name:       "seq01",
		Label:      "Seq01",
		FolderType: "Sequence",
		Attrib:     map[string]any{},
		Data:       model.EntityData{AquariumKey: "F1"},
	}
}

func TestSyncFolder(t *testing.T) {
	ctx := context.Background()

	Convey("Given an empty project", t, func() {
		store := newFakeEntities()
		r := reconcile.New(store)
		path := projectPath("F1", "P")

		Convey("When a new folder is synced", func() {
			id, err := r.SyncFolder(ctx, "demo", seq01(), path)

			Convey("Then it is created and its generated id returned", func() {
				So(err, ShouldBeNil)
				So(id, ShouldNotBeEmpty)
				So(store.folders["F1"].Label, ShouldEqual, "Seq01")
				So(store.folderSaves, ShouldEqual, 1)
				So(r.Stats().Created, ShouldEqual, 1)
			})

			Convey("And it is synced again with a new label", func() {
				folder := seq01()
				folder.Label = "Sequence 01"
				again, err := r.SyncFolder(ctx, "demo", folder, path)

				Convey("Then only the label changes and the id is kept", func() {
					So(err, ShouldBeNil)
					So(again, ShouldEqual, id)
					So(store.folders["F1"].Label, ShouldEqual, "Sequence 01")
					So(store.folders["F1"].Name, ShouldEqual, "seq01")
					So(store.folderSaves, ShouldEqual, 2)
					So(r.Stats().Updated, ShouldEqual, 1)
				})
			})

			Convey("And it is synced again unchanged", func() {
				again, err := r.SyncFolder(ctx, "demo", seq01(), path)

				Convey("Then no save is issued", func() {
					So(err, ShouldBeNil)
					So(again, ShouldEqual, id)
					So(store.folderSaves, ShouldEqual, 1)
					So(r.Stats().Unchanged, ShouldEqual, 1)
				})
			})

			Convey("And a new attribute is set", func() {
				folder := seq01()
				folder.Attrib["description"] = "opening"
				_, err := r.SyncFolder(ctx, "demo", folder, path)

				Convey("Then the key becomes owned by sync", func() {
					So(err, ShouldBeNil)
					So(store.folders["F1"].Attrib["description"], ShouldEqual, "opening")
					So(store.folders["F1"].OwnAttrib, ShouldContain, "description")
				})
			})
		})

		Convey("When a folder has no aquarium key", func() {
			folder := seq01()
			folder.Data.AquariumKey = ""
			id, err := r.SyncFolder(ctx, "demo", folder, path)

			Convey("Then it is rejected and nothing is saved", func() {
				So(errors.Is(err, reconcile.ErrMissingKey), ShouldBeTrue)
				So(reconcile.Reply(id, err), ShouldEqual, "aquariumKey not found")
				So(store.folderSaves, ShouldEqual, 0)
			})
		})

		Convey("When a folder's parent is not synced yet", func() {
			id, err := r.SyncFolder(ctx, "demo", seq01(), projectPath("F1", "EP_MISSING", "P"))

			Convey("Then it is created without a parent", func() {
				So(err, ShouldBeNil)
				So(id, ShouldNotBeEmpty)
				So(store.folders["F1"].ParentID, ShouldBeEmpty)
			})
		})

		Convey("When saving fails", func() {
			store.saveErr = errors.New("db down")
			id, err := r.SyncFolder(ctx, "demo", seq01(), path)

			Convey("Then the reply is empty", func() {
				So(errors.Is(err, reconcile.ErrSave), ShouldBeTrue)
				So(reconcile.Reply(id, err), ShouldEqual, "")
				So(r.Stats().Failed, ShouldEqual, 1)
			})
		})
	})

	Convey("Given an existing attribute with an integral number", t, func() {
		store := newFakeEntities()
		store.folders["F1"] = &model.FolderEntity{
			ID: "f", Name: "seq01", Label: "Seq01",
			Attrib:    map[string]any{"fps": 24},
			OwnAttrib: []string{"fps"},
			Data:      model.EntityData{AquariumKey: "F1"},
		}
		r := reconcile.New(store)
		folder := seq01()
		folder.Attrib["fps"] = float64(24)

		Convey("When the same value arrives as a float", func() {
			_, err := r.SyncFolder(ctx, "demo", folder, nil)

			Convey("Then it is not a change", func() {
				So(err, ShouldBeNil)
				So(store.folderSaves, ShouldEqual, 0)
			})
		})
	})
}

func TestSyncTask(t *testing.T) {
	ctx := context.Background()

	Convey("Given a project with one synced sequence", t, func() {
		store := newFakeEntities()
		r := reconcile.New(store)
		folderID, err := r.SyncFolder(ctx, "demo", seq01(), projectPath("F1", "P"))
		So(err, ShouldBeNil)

		Convey("When a task arrives without a path", func() {
			task := model.Task{Name: "comp", Label: "comp", Data: model.EntityData{AquariumKey: "T1"}}
			id, err := r.SyncTask(ctx, "demo", task, nil)

			Convey("Then it is rejected and nothing is created", func() {
				So(errors.Is(err, reconcile.ErrNoFolderID), ShouldBeTrue)
				So(reconcile.Reply(id, err), ShouldEqual, "No folderId provided")
				So(store.tasks, ShouldBeEmpty)
				So(store.taskSaves, ShouldEqual, 0)
			})
		})

		Convey("When a task arrives under the sequence", func() {
			task := model.Task{Name: "compositing", Label: "Compositing", Assignees: []string{"alice"}, Attrib: map[string]any{}, Data: model.EntityData{AquariumKey: "T1"}}
			id, err := r.SyncTask(ctx, "demo", task, projectPath("T1", "F1", "P"))

			Convey("Then folder, type and default status are filled in", func() {
				So(err, ShouldBeNil)
				So(id, ShouldNotBeEmpty)
				saved := store.tasks["T1"]
				So(saved.FolderID, ShouldEqual, folderID)
				So(saved.TaskType, ShouldEqual, "Compositing")
				So(saved.Status, ShouldEqual, "Not ready")
				So(saved.Assignees, ShouldResemble, []string{"alice"})
			})

			Convey("And the assignees change", func() {
				task.Assignees = []string{"alice", "bob"}
				again, err := r.SyncTask(ctx, "demo", task, projectPath("T1", "F1", "P"))

				Convey("Then the task is updated in place", func() {
					So(err, ShouldBeNil)
					So(again, ShouldEqual, id)
					So(store.tasks["T1"].Assignees, ShouldResemble, []string{"alice", "bob"})
					So(store.taskSaves, ShouldEqual, 2)
				})
			})

			Convey("And it arrives again unchanged", func() {
				_, err := r.SyncTask(ctx, "demo", task, projectPath("T1", "F1", "P"))

				Convey("Then no save is issued", func() {
					So(err, ShouldBeNil)
					So(store.taskSaves, ShouldEqual, 1)
				})
			})
		})

		Convey("When no task type matches", func() {
			task := model.Task{Name: "misc", Label: "Misc", Data: model.EntityData{AquariumKey: "T2"}}
			id, err := r.SyncTask(ctx, "demo", task, projectPath("T2", "F1", "P"))

			Convey("Then creation fails with an empty reply", func() {
				So(reconcile.Reply(id, err), ShouldEqual, "")
				So(store.tasks, ShouldNotContainKey, "T2")
			})
		})

		Convey("When the project is unknown", func() {
			task := model.Task{Name: "comp", Data: model.EntityData{AquariumKey: "T3"}, FolderID: folderID}
			id, err := r.SyncTask(ctx, "other", task, nil)

			Convey("Then the project is reported missing", func() {
				So(reconcile.Reply(id, err), ShouldEqual, "Project not found")
			})
		})
	})
}

func TestReply(t *testing.T) {
	Convey("Given reconcile results", t, func() {
		So(reconcile.Reply("abc", nil), ShouldEqual, "abc")
		So(reconcile.Reply("", fmt.Errorf("wrap: %w", reconcile.ErrNotPaired)), ShouldEqual, "aquariumProjectKey not found")
		So(reconcile.Reply("", errors.New("boom")), ShouldEqual, "")
	})
}

func TestParseReply(t *testing.T) {
	Convey("Given replies of the sync endpoints", t, func() {
		id, err := reconcile.ParseReply("abc")
		So(err, ShouldBeNil)
		So(id, ShouldEqual, "abc")

		_, err = reconcile.ParseReply("No folderId provided")
		So(errors.Is(err, reconcile.ErrNoFolderID), ShouldBeTrue)

		_, err = reconcile.ParseReply("")
		So(errors.Is(err, reconcile.ErrSave), ShouldBeTrue)

		_, err = reconcile.ParseReply(reconcile.Reply("", reconcile.ErrMissingKey))
		So(errors.Is(err, reconcile.ErrMissingKey), ShouldBeTrue)
	})
}
