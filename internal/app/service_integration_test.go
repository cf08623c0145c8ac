package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/aqsync/internal/adapters/mq/queue"
	"github.com/okian/aqsync/internal/adapters/repository"
	"github.com/okian/aqsync/internal/domain/extract"
	"github.com/okian/aqsync/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// eventually polls cond until it holds or timeout passes.
func eventually(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

// run starts fn in the background and returns a function that cancels it
// and waits for it to return.
func run(fn func(ctx context.Context) error) (stop func() error) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fn(ctx) }()
	return func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			return context.DeadlineExceeded
		}
	}
}

var (
	projectItem = model.Item{Key: "P1", Type: "Project", Data: model.ItemData{Name: "Demo"}}
	seqItem     = model.Item{Key: "SQ1", Type: "Sequence", Data: model.ItemData{Name: "SQ01"}}
	shotItem    = model.Item{Key: "SH1", Type: "Shot", Data: model.ItemData{Name: "SH010", Status: "wip"}}
	taskItem    = model.Item{Key: "T1", Type: "Task", Data: model.ItemData{Name: "Animation"}}
)

func projectRows() []extract.Row {
	return []extract.Row{
		{Type: "Shot", Items: []extract.FolderRow{{
			Folder: shotItem,
			Path:   model.RootFirst{projectItem, seqItem, shotItem},
			Tasks: []extract.TaskRow{{
				Task:      taskItem,
				Path:      model.RootFirst{projectItem, seqItem, shotItem, taskItem},
				Assignees: []string{"ann@studio.test"},
			}},
		}}},
		{Type: "Sequence", Items: []extract.FolderRow{{
			Folder: seqItem,
			Path:   model.RootFirst{projectItem, seqItem},
		}}},
	}
}

func TestProcessorFullSync(t *testing.T) {
	Convey("Given a paired project and a running processor", t, func() {
		ctx := context.Background()
		f := newFixture(ctx,
			repository.WithProject(demoProject()),
			repository.WithUsers(model.User{Name: "ann", Email: "ann@studio.test"}))
		f.aq.SetTraversal("P1", extract.Query, projectRows())
		stop := run(func(ctx context.Context) error { return f.svc.RunProcessor(ctx, nil) })
		Reset(func() {
			So(stop(), ShouldBeNil)
			f.close()
		})

		Convey("When a sync is triggered", func() {
			id, err := f.svc.TriggerSync(ctx, "demo", "ann")
			So(err, ShouldBeNil)

			finished := eventually(5*time.Second, func() bool {
				view, err := f.svc.Event(ctx, id)
				return err == nil && view.Status == model.StatusFinished
			})

			Convey("Then the hierarchy lands in AYON with parents before children", func() {
				So(finished, ShouldBeTrue)

				seq, err := f.repo.FolderByKey(ctx, "demo", "SQ1")
				So(err, ShouldBeNil)
				So(seq, ShouldNotBeNil)
				shot, err := f.repo.FolderByKey(ctx, "demo", "SH1")
				So(err, ShouldBeNil)
				So(shot.ParentID, ShouldEqual, seq.ID)
				So(shot.Status, ShouldEqual, "wip")

				task, err := f.repo.TaskByKey(ctx, "demo", "T1")
				So(err, ShouldBeNil)
				So(task.FolderID, ShouldEqual, shot.ID)
				So(task.TaskType, ShouldEqual, "Animation")
				So(task.Assignees, ShouldResemble, []string{"ann"})
			})

			Convey("Then the event summary reports every type", func() {
				So(finished, ShouldBeTrue)
				view, err := f.svc.Event(ctx, id)
				So(err, ShouldBeNil)
				So(view.Summary, ShouldContainKey, "Shot")
				So(view.Summary, ShouldContainKey, "Sequence")
			})
		})
	})
}

func TestProcessorBootstrap(t *testing.T) {
	Convey("Given an unpaired project and a running processor", t, func() {
		ctx := context.Background()
		f := newFixture(ctx, repository.WithProject(model.Project{Name: "fresh", Code: "fr"}))
		So(f.repo.SaveFolder(ctx, "fresh", &model.FolderEntity{Name: "sq01", Label: "SQ01", FolderType: "Sequence"}), ShouldBeNil)
		stop := run(func(ctx context.Context) error { return f.svc.RunProcessor(ctx, nil) })
		Reset(func() {
			So(stop(), ShouldBeNil)
			f.close()
		})

		Convey("When a project creation is requested", func() {
			_, err := f.svc.CreateProject(ctx, "ann", "fresh", "Fresh Show")
			So(err, ShouldBeNil)

			paired := eventually(5*time.Second, func() bool {
				p, err := f.repo.GetProject(ctx, "fresh")
				return err == nil && p != nil && p.AquariumProjectKey != ""
			})

			Convey("Then Aquarium gets the project and the pairing is stored", func() {
				So(paired, ShouldBeTrue)
				So(f.aq.Imports(), ShouldHaveLength, 1)
				links, err := f.repo.ProjectLinks(ctx)
				So(err, ShouldBeNil)
				So(links, ShouldContainKey, "I1")
			})
		})
	})
}

func TestLeecherToProcessor(t *testing.T) {
	Convey("Given a running leecher and processor", t, func() {
		ctx := context.Background()
		f := newFixture(ctx,
			repository.WithProject(demoProject()),
			repository.WithUsers(model.User{Name: "ann", Email: "ann@studio.test"}))
		f.aq.SetTraversal("T1", extract.AssigneesQuery, []string{"ann@studio.test"})

		stopLeecher := run(f.svc.RunLeecher)
		stopProcessor := run(func(ctx context.Context) error { return f.svc.RunProcessor(ctx, nil) })
		Reset(func() {
			So(stopLeecher(), ShouldBeNil)
			So(stopProcessor(), ShouldBeNil)
			f.close()
		})

		select {
		case topic := <-f.aq.Subscribed():
			So(topic, ShouldEqual, "*")
		case <-time.After(5 * time.Second):
			So("subscription", ShouldBeEmpty)
		}

		Convey("When Aquarium publishes a shot and a task under it", func() {
			f.aq.Publish(model.SourceEvent{
				Key:   "ev-1",
				Topic: "item.created.Shot",
				Data:  model.SourceEventData{Item: shotItem},
				Path:  model.Path{shotItem, projectItem},
			})
			f.aq.Publish(model.SourceEvent{
				Key:   "ev-2",
				Topic: "user.assigned",
				Data:  model.SourceEventData{Item: taskItem},
				Path:  model.Path{taskItem, shotItem, projectItem},
			})
			f.aq.Publish(model.SourceEvent{
				Key:   "ev-3",
				Topic: "comment.created",
				Data:  model.SourceEventData{Item: model.Item{Key: "C1", Type: "Comment"}},
				Path:  model.Path{projectItem},
			})

			synced := eventually(5*time.Second, func() bool {
				task, err := f.repo.TaskByKey(ctx, "demo", "T1")
				return err == nil && task != nil
			})

			Convey("Then both reach AYON and the unknown topic is filtered", func() {
				So(synced, ShouldBeTrue)
				shot, err := f.repo.FolderByKey(ctx, "demo", "SH1")
				So(err, ShouldBeNil)
				So(shot, ShouldNotBeNil)
				task, err := f.repo.TaskByKey(ctx, "demo", "T1")
				So(err, ShouldBeNil)
				So(task.FolderID, ShouldEqual, shot.ID)
				So(task.Assignees, ShouldResemble, []string{"ann"})

				leeched, err := f.jobs.List(ctx, queue.ListFilter{Topic: model.TopicLeech})
				So(err, ShouldBeNil)
				So(leeched, ShouldHaveLength, 2)
			})
		})
	})
}
