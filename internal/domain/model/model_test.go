package model_test

import (
	"encoding/json"
	"testing"

	"github.com/okian/aqsync/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPathOrientation(t *testing.T) {
	Convey("Given a root-first path returned by a traversal", t, func() {
		rootFirst := model.RootFirst{
			{Key: "P", Type: "Project"},
			{Key: "SQ", Type: "Sequence"},
			{Key: "SH", Type: "Shot"},
		}

		Convey("When it is converted to leaf-first", func() {
			path := rootFirst.LeafFirst()

			Convey("Then the entity comes first and the project last", func() {
				self, _ := path.Self()
				parent, _ := path.Parent()
				project, _ := path.Project()
				So(self.Key, ShouldEqual, "SH")
				So(parent.Key, ShouldEqual, "SQ")
				So(project.Key, ShouldEqual, "P")
			})

			Convey("Then the original is untouched and the conversion round-trips", func() {
				So(rootFirst[0].Key, ShouldEqual, "P")
				So(path.RootFirst(), ShouldResemble, rootFirst)
			})
		})

		Convey("When the path is too short", func() {
			path := model.Path{{Key: "P"}}
			_, ok := path.Parent()

			Convey("Then there is no parent", func() {
				So(ok, ShouldBeFalse)
				So(model.RootFirst(nil).LeafFirst(), ShouldBeNil)
			})
		})
	})
}

func TestItemDataExtra(t *testing.T) {
	Convey("Given an item with fields the engine does not read", t, func() {
		raw := `{"_key":"S1","type":"Shot","data":{"name":"sh010","status":"WIP","frameIn":1001,"notes":{"a":1}}}`

		var item model.Item
		err := json.Unmarshal([]byte(raw), &item)

		Convey("Then known fields are typed and the rest is kept aside", func() {
			So(err, ShouldBeNil)
			So(item.Data.Name, ShouldEqual, "sh010")
			So(item.Data.Status, ShouldEqual, "WIP")
			So(item.Data.Tags, ShouldBeNil)
			So(item.Data.Extra["frameIn"], ShouldEqual, float64(1001))
		})

		Convey("Then encoding writes the extra fields back", func() {
			out, err := json.Marshal(item)
			So(err, ShouldBeNil)
			So(string(out), ShouldContainSubstring, `"frameIn":1001`)
			So(string(out), ShouldContainSubstring, `"name":"sh010"`)
			So(string(out), ShouldNotContainSubstring, `"description"`)
		})
	})

	Convey("Given item data with a wrongly typed known field", t, func() {
		var item model.Item
		err := json.Unmarshal([]byte(`{"data":{"name":12}}`), &item)

		Convey("Then decoding fails", func() {
			So(err, ShouldNotBeNil)
		})
	})
}

func TestSourceEvent(t *testing.T) {
	Convey("Given a live event without an explicit project", t, func() {
		evt := model.SourceEvent{
			Key:   "E1",
			Topic: "item.updated.Shot",
			Data:  model.SourceEventData{Item: model.Item{Key: "other"}},
			Path:  model.Path{{Key: "SH"}, {Key: "SQ"}, {Key: "P"}},
		}

		Convey("Then the project comes from the path tail and the subject from its head", func() {
			So(evt.ProjectKey(), ShouldEqual, "P")
			So(evt.Subject().Key, ShouldEqual, "SH")
		})

		Convey("When the project is set", func() {
			evt.Project = "P2"
			So(evt.ProjectKey(), ShouldEqual, "P2")
		})

		Convey("When the path is empty", func() {
			evt.Path = nil
			So(evt.Subject().Key, ShouldEqual, "other")
			So(evt.ProjectKey(), ShouldEqual, "")
		})
	})

	Convey("Given a raw event carrying fields beyond the model", t, func() {
		raw := `{"_key":"ev-9","topic":"user.assigned","project":"P1","createdAt":"2024-05-01",` +
			`"data":{"item":{"_key":"T1","type":"Task","data":{"name":"anim"}},"user":{"_key":"U1"},"edge":{"type":"Assigned"}}}`
		var evt model.SourceEvent
		So(json.Unmarshal([]byte(raw), &evt), ShouldBeNil)

		Convey("Then the known fields are decoded", func() {
			So(evt.Key, ShouldEqual, "ev-9")
			So(evt.Data.Item.Key, ShouldEqual, "T1")
			So(evt.Extra, ShouldContainKey, "createdAt")
			So(evt.Data.Extra, ShouldContainKey, "user")
			So(evt.Data.Extra, ShouldContainKey, "edge")
		})

		Convey("When it is encoded again", func() {
			out, err := json.Marshal(evt)
			So(err, ShouldBeNil)

			Convey("Then nothing was lost", func() {
				var want, got map[string]any
				So(json.Unmarshal([]byte(raw), &want), ShouldBeNil)
				So(json.Unmarshal(out, &got), ShouldBeNil)
				So(got, ShouldResemble, want)
			})
		})
	})

	Convey("Given an event without extra fields", t, func() {
		var evt model.SourceEvent
		So(json.Unmarshal([]byte(`{"_key":"E1","topic":"item.created.Shot","data":{"item":{"_key":"SH"}}}`), &evt), ShouldBeNil)

		Convey("Then no side channel is allocated", func() {
			So(evt.Extra, ShouldBeNil)
			So(evt.Data.Extra, ShouldBeNil)
		})
	})
}

func TestBatchLen(t *testing.T) {
	Convey("Given a batch grouped by type", t, func() {
		batch := model.Batch{
			"Shot":  {{}, {}},
			"Asset": {{}},
		}
		So(batch.Len(), ShouldEqual, 3)
	})
}
