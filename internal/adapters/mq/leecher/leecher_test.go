package leecher_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/aqsync/internal/adapters/aquarium"
	"github.com/okian/aqsync/internal/adapters/aquarium/aquariumtest"
	"github.com/okian/aqsync/internal/adapters/mq/leecher"
	"github.com/okian/aqsync/internal/adapters/mq/queue"
	"github.com/okian/aqsync/internal/domain/dedupe"
	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithLevel("error")); err != nil {
		panic(err)
	}
}

var allowed = []string{"item.created.Shot", "item.updated.Task", "user.assigned"}

type failingStore struct {
	calls atomic.Int64
}

func (f *failingStore) Dispatch(context.Context, queue.DispatchRequest) (string, error) {
	f.calls.Add(1)
	return "", errors.New("store down")
}

type flakySource struct {
	signIns atomic.Int64
}

func (f *flakySource) SignIn(context.Context, string, string) (string, error) {
	f.signIns.Add(1)
	return "", aquarium.ErrAuthentication
}

func (f *flakySource) Subscribe(context.Context, string, aquarium.Handler) error {
	return errors.New("unreachable")
}

func event(key, topic string) model.SourceEvent {
	return model.SourceEvent{Key: key, Topic: topic, Project: "P1"}
}

func TestFilter(t *testing.T) {
	Convey("Given a leecher with an allow and a deny set", t, func() {
		l := leecher.New(nil, queue.NewMemoryStore(),
			leecher.WithAllowedTopics(allowed...),
			leecher.WithIgnoredTopics("user.assigned"))

		Convey("Then deny wins over allow", func() {
			ok, reason := l.Allowed("user.assigned")
			So(ok, ShouldBeFalse)
			So(reason, ShouldEqual, "ignored")
		})

		Convey("Then unknown topics are not allowed", func() {
			ok, reason := l.Allowed("item.deleted.Shot")
			So(ok, ShouldBeFalse)
			So(reason, ShouldEqual, "not_allowed")
		})

		Convey("Then allowed topics pass", func() {
			ok, _ := l.Allowed("item.created.Shot")
			So(ok, ShouldBeTrue)
		})
	})

	Convey("Given a leecher without an allow set", t, func() {
		l := leecher.New(nil, queue.NewMemoryStore())
		ok, _ := l.Allowed("item.created.Shot")
		So(ok, ShouldBeFalse)
	})
}

func TestHandle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a leecher writing to a memory store", t, func() {
		store := queue.NewMemoryStore()
		l := leecher.New(nil, store, leecher.WithAllowedTopics(allowed...), leecher.WithSender("test-leecher"))

		Convey("When an allowed event arrives", func() {
			l.Handle(ctx, event("E1", "item.created.Shot"))

			Convey("Then a leech source event is stored under the event key", func() {
				got, err := store.FindByHash(ctx, "E1")
				So(err, ShouldBeNil)
				So(got, ShouldNotBeNil)
				So(got.Topic, ShouldEqual, model.TopicLeech)
				So(got.Sender, ShouldEqual, "test-leecher")
				So(got.Project, ShouldEqual, "P1")
				So(got.Description, ShouldEqual, "Received item.created.Shot #E1")
				So(string(got.Payload), ShouldContainSubstring, `"_key":"E1"`)
				So(l.Stats().Forwarded, ShouldEqual, 1)
			})
		})

		Convey("When an event carries fields the model does not name", func() {
			raw := `{"_key":"ev-9","topic":"user.assigned","project":"P1","createdAt":"2024-05-01",` +
				`"data":{"item":{"_key":"T1","type":"Task","data":{"name":"anim"}},"user":{"_key":"U1"},"edge":{"type":"Assigned"}}}`
			var evt model.SourceEvent
			So(json.Unmarshal([]byte(raw), &evt), ShouldBeNil)
			l.Handle(ctx, evt)

			Convey("Then the stored payload is the event as received", func() {
				got, err := store.FindByHash(ctx, "ev-9")
				So(err, ShouldBeNil)
				So(got, ShouldNotBeNil)
				var want, stored map[string]any
				So(json.Unmarshal([]byte(raw), &want), ShouldBeNil)
				So(json.Unmarshal(got.Payload, &stored), ShouldBeNil)
				So(stored, ShouldResemble, want)
			})
		})

		Convey("When the same event is delivered twice", func() {
			l.Handle(ctx, event("E1", "item.created.Shot"))
			l.Handle(ctx, event("E1", "item.created.Shot"))

			Convey("Then it is stored once", func() {
				events, err := store.List(ctx, queue.ListFilter{Topic: model.TopicLeech})
				So(err, ShouldBeNil)
				So(events, ShouldHaveLength, 1)
				So(l.Stats().Duplicates, ShouldEqual, 1)
			})
		})

		Convey("When the deduper forgot a key the store already has", func() {
			fresh := leecher.New(nil, store, leecher.WithAllowedTopics(allowed...), leecher.WithDeduper(dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(1))))
			fresh.Handle(ctx, event("E1", "item.created.Shot"))
			fresh.Handle(ctx, event("E2", "item.created.Shot"))
			fresh.Handle(ctx, event("E1", "item.created.Shot"))

			Convey("Then the store hash still rejects it as a duplicate", func() {
				events, _ := store.List(ctx, queue.ListFilter{Topic: model.TopicLeech})
				So(events, ShouldHaveLength, 2)
				So(fresh.Stats().Duplicates, ShouldEqual, 1)
				So(fresh.Stats().Dropped, ShouldEqual, 0)
			})
		})

		Convey("When a filtered or keyless event arrives", func() {
			l.Handle(ctx, event("E9", "item.deleted.Shot"))
			l.Handle(ctx, event("", "item.created.Shot"))

			Convey("Then nothing is stored", func() {
				events, _ := store.List(ctx, queue.ListFilter{})
				So(events, ShouldBeEmpty)
				So(l.Stats().Filtered, ShouldEqual, 1)
				So(l.Stats().Dropped, ShouldEqual, 1)
				So(l.Stats().Received, ShouldEqual, 2)
			})
		})
	})

	Convey("Given a failing store", t, func() {
		store := &failingStore{}
		l := leecher.New(nil, store, leecher.WithAllowedTopics(allowed...))

		Convey("When the same event is delivered twice", func() {
			l.Handle(ctx, event("E1", "item.created.Shot"))
			l.Handle(ctx, event("E1", "item.created.Shot"))

			Convey("Then both deliveries are attempted and dropped", func() {
				So(store.calls.Load(), ShouldEqual, 2)
				So(l.Stats().Dropped, ShouldEqual, 2)
				So(l.Stats().Duplicates, ShouldEqual, 0)
			})
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a leecher without credentials", t, func() {
		l := leecher.New(&flakySource{}, queue.NewMemoryStore())
		So(errors.Is(l.Run(context.Background()), leecher.ErrMissingCredentials), ShouldBeTrue)
	})

	Convey("Given an unreachable Aquarium", t, func() {
		src := &flakySource{}
		l := leecher.New(src, queue.NewMemoryStore(),
			leecher.WithCredentials("bot", "secret"),
			leecher.WithReconnectDelay(5*time.Millisecond))

		Convey("When running for a while", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
			defer cancel()
			err := l.Run(ctx)

			Convey("Then it keeps retrying and stops cleanly", func() {
				So(err, ShouldBeNil)
				So(src.signIns.Load(), ShouldBeGreaterThan, 1)
				So(l.Connected(), ShouldBeFalse)
			})
		})
	})

	Convey("Given a fake Aquarium streaming events", t, func() {
		srv := aquariumtest.NewServer()
		Reset(srv.Close)
		store := queue.NewMemoryStore()
		l := leecher.New(aquarium.New(srv.URL), store,
			leecher.WithAllowedTopics(allowed...),
			leecher.WithCredentials(aquariumtest.BotKey, aquariumtest.Secret),
			leecher.WithReconnectDelay(10*time.Millisecond))

		done := make(chan error, 1)
		go func() { done <- l.Run(context.Background()) }()

		Convey("When events are published", func() {
			So(<-srv.Subscribed(), ShouldEqual, "*")
			srv.Publish(event("E1", "item.deleted.Shot"))
			srv.Publish(event("E2", "item.updated.Task"))

			Convey("Then the allowed one is forwarded", func() {
				So(waitFor(func() bool { return l.Stats().Forwarded == 1 }), ShouldBeTrue)
				got, _ := store.FindByHash(context.Background(), "E2")
				So(got, ShouldNotBeNil)
				So(l.Stats().Filtered, ShouldEqual, 1)
				So(l.Connected(), ShouldBeTrue)

				So(l.Shutdown(context.Background()), ShouldBeNil)
				So(<-done, ShouldBeNil)
			})
		})

		Convey("When the stream drops", func() {
			<-srv.Subscribed()
			srv.Drop()

			Convey("Then the leecher signs in and subscribes again", func() {
				select {
				case topic := <-srv.Subscribed():
					So(topic, ShouldEqual, "*")
				case <-time.After(2 * time.Second):
					So("no resubscription", ShouldBeEmpty)
				}
				So(srv.SignIns(), ShouldBeGreaterThanOrEqualTo, 2)
				_ = l.Shutdown(context.Background())
				So(<-done, ShouldBeNil)
			})
		})
	})
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
