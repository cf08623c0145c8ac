package projectsync_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/okian/aqsync/internal/adapters/repository"
	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/internal/domain/projectsync"
	"github.com/okian/aqsync/internal/domain/reconcile"
	"github.com/okian/aqsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithLevel("error")); err != nil {
		panic(err)
	}
}

func item(key string) model.Item { return model.Item{Key: key} }

func folderRecord(key, name, typ string, path ...string) model.FolderRecord {
	p := model.Path{item(key)}
	for _, k := range path {
		p = append(p, item(k))
	}
	return model.FolderRecord{
		Folder: model.Folder{Name: name, Label: name, FolderType: typ, Attrib: map[string]any{}, Data: model.EntityData{AquariumKey: key}},
		Path:   p,
	}
}

type recorder struct {
	snapshots []map[string]model.Progress
}

func (r *recorder) Report(_ context.Context, summary map[string]any) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	var snap map[string]model.Progress
	if err := json.Unmarshal(raw, &snap); err != nil {
		return err
	}
	r.snapshots = append(r.snapshots, snap)
	return nil
}

func TestSync(t *testing.T) {
	ctx := context.Background()

	Convey("Given a paired project", t, func() {
		store := repository.NewMemoryStore(repository.WithProject(model.Project{
			Name:               "demo",
			AquariumProjectKey: "P",
			TaskTypes:          []model.TaskType{{Name: "Animation"}},
			Statuses:           []model.Status{{Name: "TO DO"}},
		}))
		syncer := projectsync.New(store, reconcile.New(store))

		Convey("When a batch holds a Sequence and a Shot under it", func() {
			shot := folderRecord("SH", "sh010", "Shot", "SQ", "P")
			shot.Tasks = []model.TaskRecord{{
				Task: model.Task{Name: "animation", Label: "Animation", Attrib: map[string]any{}, Data: model.EntityData{AquariumKey: "T1"}},
				Path: model.Path{item("T1"), item("SH"), item("SQ"), item("P")},
			}}
			batch := model.Batch{
				"Shot":     {shot},
				"Sequence": {folderRecord("SQ", "sq01", "Sequence", "P")},
			}
			rec := &recorder{}
			res, err := syncer.Sync(ctx, "demo", batch, rec)

			Convey("Then the Shot finds its Sequence whatever the map order", func() {
				So(err, ShouldBeNil)
				So(res.Folders, ShouldEqual, 2)
				So(res.Tasks, ShouldEqual, 1)
				So(res.Failed, ShouldEqual, 0)
				sq, _ := store.FolderByKey(ctx, "demo", "SQ")
				sh, _ := store.FolderByKey(ctx, "demo", "SH")
				So(sh.ParentID, ShouldEqual, sq.ID)
				task, _ := store.TaskByKey(ctx, "demo", "T1")
				So(task.FolderID, ShouldEqual, sh.ID)
			})

			Convey("Then progress is reported after every folder", func() {
				So(rec.snapshots, ShouldHaveLength, 2)
				So(rec.snapshots[0]["Sequence"], ShouldResemble, model.Progress{Count: 1, Progression: 1})
				So(rec.snapshots[0]["Shot"], ShouldResemble, model.Progress{Count: 1, Progression: 0})
				So(rec.snapshots[1]["Shot"].Progression, ShouldEqual, 1.0)
			})

			Convey("And the same batch is synced again", func() {
				saves := store.Saves()
				_, err := syncer.Sync(ctx, "demo", batch, nil)

				Convey("Then nothing is written", func() {
					So(err, ShouldBeNil)
					So(store.Saves(), ShouldEqual, saves)
				})
			})
		})

		Convey("When a record fails", func() {
			bad := folderRecord("", "nokey", "Asset", "P")
			batch := model.Batch{"Asset": {bad, folderRecord("A2", "chair", "Asset", "P")}}
			res, err := syncer.Sync(ctx, "demo", batch, nil)

			Convey("Then its siblings are still synced", func() {
				So(err, ShouldBeNil)
				So(res.Failed, ShouldEqual, 1)
				So(res.Folders, ShouldEqual, 1)
			})
		})

		Convey("When the batch contains a type outside the sync order", func() {
			res, err := syncer.Sync(ctx, "demo", model.Batch{"Folder": {folderRecord("X", "x", "Folder", "P")}}, nil)

			Convey("Then it is ignored", func() {
				So(err, ShouldBeNil)
				So(res.Folders, ShouldEqual, 0)
			})
		})
	})

	Convey("Given projects that cannot be synced", t, func() {
		store := repository.NewMemoryStore(repository.WithProject(model.Project{Name: "unpaired"}))
		syncer := projectsync.New(store, reconcile.New(store))

		_, errMissing := syncer.Sync(ctx, "ghost", model.Batch{}, nil)
		_, errUnpaired := syncer.Sync(ctx, "unpaired", model.Batch{}, nil)

		So(errors.Is(errMissing, reconcile.ErrProjectNotFound), ShouldBeTrue)
		So(reconcile.Reply("", errMissing), ShouldEqual, "Project not found")
		So(reconcile.Reply("", errUnpaired), ShouldEqual, "aquariumProjectKey not found")
	})
}

func TestProgression(t *testing.T) {
	Convey("Given folder counts", t, func() {
		So(projectsync.Progression(1, 3), ShouldEqual, 0.33)
		So(projectsync.Progression(2, 3), ShouldEqual, 0.67)
		So(projectsync.Progression(3, 3), ShouldEqual, 1.0)
		So(projectsync.Progression(0, 0), ShouldEqual, 1.0)
	})
}
