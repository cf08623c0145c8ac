package aquarium_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/aqsync/internal/adapters/aquarium"
	"github.com/okian/aqsync/internal/adapters/aquarium/aquariumtest"
	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/internal/domain/template"
	"github.com/okian/aqsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithLevel("error")); err != nil {
		panic(err)
	}
}

func TestClientSignIn(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fake Aquarium", t, func() {
		srv := aquariumtest.NewServer()
		Reset(srv.Close)
		c := aquarium.New(srv.URL, aquarium.WithTimeout(2*time.Second), aquarium.WithDomain("studio"))

		Convey("When the bot signs in with valid credentials", func() {
			token, err := c.SignIn(ctx, aquariumtest.BotKey, aquariumtest.Secret)

			Convey("Then the token is kept", func() {
				So(err, ShouldBeNil)
				So(token, ShouldEqual, aquariumtest.Token)
				So(c.Connected(), ShouldBeTrue)
			})
		})

		Convey("When the secret is wrong", func() {
			_, err := c.SignIn(ctx, aquariumtest.BotKey, "nope")

			Convey("Then it is an authentication error", func() {
				So(errors.Is(err, aquarium.ErrAuthentication), ShouldBeTrue)
				So(c.Connected(), ShouldBeFalse)
			})
		})

		Convey("When calling without a session", func() {
			_, err := c.Projects(ctx)
			So(errors.Is(err, aquarium.ErrAuthentication), ShouldBeTrue)
		})
	})
}

func TestClientQueries(t *testing.T) {
	ctx := context.Background()

	Convey("Given a signed-in client", t, func() {
		srv := aquariumtest.NewServer()
		Reset(srv.Close)
		c := aquarium.New(srv.URL, aquarium.WithToken(aquariumtest.Token))

		srv.SetProjects(model.Item{Key: "P1", Type: "Project", Data: model.ItemData{Name: "Demo"}})
		srv.SetQuery("# 0,1 item._key == @projectKey VIEW $view", []map[string]any{{"item": map[string]any{"_key": "P1"}}})
		srv.SetTraversal("P1", "# -($Child)> $Task VIEW item", []map[string]any{{"_key": "T1"}})

		Convey("Then projects are listed", func() {
			projects, err := c.Projects(ctx)
			So(err, ShouldBeNil)
			So(projects, ShouldHaveLength, 1)
			So(projects[0].Data.Name, ShouldEqual, "Demo")
		})

		Convey("Then queries and traversals decode rows", func() {
			var rows []map[string]any
			So(c.Query(ctx, "# 0,1 item._key == @projectKey VIEW $view", map[string]any{"projectKey": "P1"}, &rows), ShouldBeNil)
			So(rows, ShouldHaveLength, 1)

			var tasks []model.Item
			So(c.Traverse(ctx, "P1", "# -($Child)> $Task VIEW item", nil, &tasks), ShouldBeNil)
			So(tasks[0].Key, ShouldEqual, "T1")
		})

		Convey("Then single items are read and missing ones reported", func() {
			it, err := c.Item(ctx, "P1")
			So(err, ShouldBeNil)
			So(it.Type, ShouldEqual, "Project")
			_, err = c.Item(ctx, "missing")
			So(errors.Is(err, aquarium.ErrNotFound), ShouldBeTrue)
		})

		Convey("Then imports return created items in order", func() {
			items := []model.Item{{Type: "Project", Data: model.ItemData{Name: "New"}}, {Type: "Shot", Data: model.ItemData{Name: "sh010"}}}
			edges := []template.Edge{{Source: 0, Target: 1, Type: template.EdgeChild}}
			created, err := c.Import(ctx, "", items, edges)
			So(err, ShouldBeNil)
			So(created, ShouldHaveLength, 2)
			So(created[0].Key, ShouldNotBeEmpty)
			So(created[1].Data.Name, ShouldEqual, "sh010")
			So(srv.Imports()[0].Edges, ShouldResemble, edges)
		})
	})
}

func TestListener(t *testing.T) {
	Convey("Given a signed-in listener", t, func() {
		srv := aquariumtest.NewServer()
		Reset(srv.Close)
		c := aquarium.New(srv.URL, aquarium.WithToken(aquariumtest.Token))
		ctx, cancel := context.WithCancel(context.Background())
		Reset(cancel)

		received := make(chan model.SourceEvent, 4)
		done := make(chan error, 1)
		go func() {
			done <- c.Listener().Subscribe(ctx, "*", func(_ context.Context, e model.SourceEvent) { received <- e })
		}()

		Convey("When an event is published", func() {
			So(<-srv.Subscribed(), ShouldEqual, "*")
			srv.Publish(model.SourceEvent{Key: "E1", Topic: "item.created.Shot"})

			Convey("Then the handler receives it", func() {
				select {
				case e := <-received:
					So(e.Key, ShouldEqual, "E1")
					So(e.Topic, ShouldEqual, "item.created.Shot")
				case <-time.After(2 * time.Second):
					So("timed out", ShouldBeEmpty)
				}
			})

			Convey("Then canceling the context ends the subscription cleanly", func() {
				<-received
				cancel()
				So(<-done, ShouldBeNil)
			})
		})

		Convey("When the server drops the stream", func() {
			<-srv.Subscribed()
			srv.Drop()

			Convey("Then Subscribe returns an error", func() {
				select {
				case err := <-done:
					So(err, ShouldNotBeNil)
				case <-time.After(2 * time.Second):
					So("timed out", ShouldBeEmpty)
				}
			})
		})
	})

	Convey("Given a client without a session", t, func() {
		c := aquarium.New("http://127.0.0.1:1")
		err := c.Listener().Subscribe(context.Background(), "*", func(context.Context, model.SourceEvent) {})

		Convey("Then it refuses to subscribe", func() {
			So(errors.Is(err, aquarium.ErrNotConnected), ShouldBeTrue)
		})
	})
}
