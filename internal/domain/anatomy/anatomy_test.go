package anatomy_test

import (
	"testing"

	"github.com/okian/aqsync/internal/domain/anatomy"
	"github.com/okian/aqsync/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestParseAttrib(t *testing.T) {
	Convey("Given an Aquarium project with properties", t, func() {
		data := model.ItemData{
			Name:        "Demo",
			Description: "A short film",
			Extra:       map[string]any{"startdate": "2024-03-01", "deadline": "2024-09-01"},
		}
		properties := []map[string]any{
			{"fps": "24", "frameStart": float64(1001), "frameEnd": "1100"},
			{"resolution": "1920x1080", "fps": "", "color": "#fff"},
		}

		Convey("When attributes are parsed", func() {
			attrib := anatomy.ParseAttrib(data, properties)

			Convey("Then AYON attribute names and types are used", func() {
				So(attrib["description"], ShouldEqual, "A short film")
				So(attrib["startDate"], ShouldEqual, "2024-03-01")
				So(attrib["endDate"], ShouldEqual, "2024-09-01")
				So(attrib["fps"], ShouldEqual, 24.0)
				So(attrib["frameStart"], ShouldEqual, 1001)
				So(attrib["frameEnd"], ShouldEqual, 1100)
				So(attrib["resolutionWidth"], ShouldEqual, 1920)
				So(attrib["resolutionHeight"], ShouldEqual, 1080)
				So(attrib, ShouldNotContainKey, "color")
			})
		})

		Convey("When a value cannot be parsed", func() {
			attrib := anatomy.ParseAttrib(data, []map[string]any{{"fps": "fast", "resolution": "HD"}})

			Convey("Then it is skipped", func() {
				So(attrib, ShouldNotContainKey, "fps")
				So(attrib, ShouldNotContainKey, "resolutionWidth")
			})
		})

		Convey("When the project has no properties", func() {
			So(anatomy.ParseAttrib(data, nil), ShouldBeEmpty)
		})
	})
}

func TestParseStatuses(t *testing.T) {
	Convey("Given task statuses spread over properties", t, func() {
		properties := []map[string]any{
			{"tasks_status": []any{
				map[string]any{"status": "TO DO", "completion": float64(0)},
				map[string]any{"status": "WIP", "completion": 0.5},
			}},
			{"tasks_status": []any{
				map[string]any{"status": "WIP", "completion": 0.5},
				map[string]any{"status": "DONE", "completion": float64(1)},
				map[string]any{"status": "ON HOLD", "completion": float64(-1)},
				map[string]any{"status": "APPROVED", "shortName": "apr", "completion": float64(1)},
			}},
		}
		defaults := []anatomy.StatusDefault{{ShortName: "apr", State: "done", Icon: "verified"}}

		Convey("When statuses are parsed", func() {
			statuses := anatomy.ParseStatuses(properties, defaults)

			Convey("Then duplicates are merged and completion decides the state", func() {
				So(statuses, ShouldHaveLength, 5)
				So(statuses[0], ShouldResemble, model.Status{Name: "TO DO", ShortName: "to do", State: "not_started", Icon: "task_alt"})
				So(statuses[1].State, ShouldEqual, "in_progress")
				So(statuses[2].State, ShouldEqual, "done")
				So(statuses[3].State, ShouldEqual, "blocked")
			})

			Convey("Then settings override by short name", func() {
				So(statuses[4].State, ShouldEqual, "done")
				So(statuses[4].Icon, ShouldEqual, "verified")
			})
		})

		Convey("When the project has no properties", func() {
			statuses := anatomy.ParseStatuses(nil, nil)

			Convey("Then the default Aquarium statuses are used", func() {
				So(statuses, ShouldHaveLength, len(anatomy.DefaultAquariumStatuses))
				So(statuses[0].Name, ShouldEqual, "TO DO")
			})
		})
	})
}

func TestParseTaskTypes(t *testing.T) {
	Convey("Given template tasks", t, func() {
		tasks := []anatomy.TemplateTask{
			{Name: "Animation"},
			{Name: "Layout", ShortName: "lay"},
			{Name: "Animation"},
			{Name: "Compositing"},
		}
		defaults := []anatomy.TaskDefault{{Name: "compositing", ShortName: "comp", Icon: "layers"}}

		Convey("When task types are parsed", func() {
			types := anatomy.ParseTaskTypes(tasks, defaults)

			Convey("Then each name appears once with a short name and icon", func() {
				So(types, ShouldResemble, []model.TaskType{
					{Name: "Animation", ShortName: "nmtn", Icon: "task_alt"},
					{Name: "Layout", ShortName: "lay", Icon: "task_alt"},
					{Name: "Compositing", ShortName: "comp", Icon: "layers"},
				})
			})
		})
	})
}

func TestBuild(t *testing.T) {
	Convey("Given a project without properties or templates", t, func() {
		a := anatomy.Build(model.Item{Key: "P"}, nil, nil, anatomy.Settings{})

		Convey("Then the anatomy still has statuses", func() {
			So(a.Attributes, ShouldBeEmpty)
			So(a.Statuses, ShouldNotBeEmpty)
			So(a.TaskTypes, ShouldBeEmpty)
		})
	})
}
