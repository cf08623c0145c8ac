package template_test

import (
	"context"
	"testing"

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

func edgesOfType(plan template.Plan, typ string) []template.Edge {
	var out []template.Edge
	for _, e := range plan.Edges {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func itemsOfType(plan template.Plan, typ string) []int {
	var out []int
	for i, it := range plan.Items {
		if it.Type == typ {
			out = append(out, i)
		}
	}
	return out
}

func TestSynthesizeTemplates(t *testing.T) {
	ctx := context.Background()

	Convey("Given two Shots with the same task names in another order", t, func() {
		entries := []model.HierarchyEntry{
			{ID: "sq", Type: "Sequence", Name: "sq01", Label: "SQ01"},
			{ID: "sh1", ParentID: "sq", Type: "Shot", Name: "sh010", TaskNames: []string{"layout", "anim"}, HasTasks: true},
			{ID: "sh2", ParentID: "sq", Type: "Shot", Name: "sh020", TaskNames: []string{"anim", "layout"}, HasTasks: true},
		}

		Convey("When the plan is built", func() {
			plan := template.New().Synthesize(ctx, "demo", entries)

			Convey("Then one template serves both shots", func() {
				So(plan.Templates, ShouldEqual, 1)
				So(itemsOfType(plan, template.TypeTemplate), ShouldHaveLength, 1)
				So(edgesOfType(plan, template.EdgeTemplate), ShouldHaveLength, 2)
			})

			Convey("Then the template is named after the parent label and carries one task per name", func() {
				tpl := itemsOfType(plan, template.TypeTemplate)[0]
				So(plan.Items[tpl].Data.Name, ShouldEqual, "SQ01")
				So(plan.Items[tpl].Data.TemplateData["type"], ShouldEqual, "Shot")
				tasks := itemsOfType(plan, template.TypeTask)
				So(tasks, ShouldHaveLength, 2)
				So(plan.Items[tasks[0]].Data.Name, ShouldEqual, "anim")
				So(plan.Items[tasks[1]].Data.Name, ShouldEqual, "layout")
				So(plan.Edges, ShouldContain, template.Edge{Source: 0, Target: tpl, Type: template.EdgeChild})
			})

			Convey("Then items are in pre-order after the project root", func() {
				So(plan.Items[0].Type, ShouldEqual, template.TypeProject)
				So(plan.Items[0].Data.Name, ShouldEqual, "demo")
				So(plan.Items[1].Data.Name, ShouldEqual, "SQ01")
				So(plan.Origins[:4], ShouldResemble, []string{"", "sq", "sh1", "sh2"})
				for _, e := range edgesOfType(plan, template.EdgeChild) {
					So(e.Source, ShouldBeLessThan, e.Target)
				}
			})
		})
	})

	Convey("Given a shared signature whose first listed entry comes late in pre-order", t, func() {
		entries := []model.HierarchyEntry{
			{ID: "sqa", Type: "Sequence", Name: "sqa", Label: "SQA"},
			{ID: "sqb", Type: "Sequence", Name: "sqb", Label: "SQB"},
			{ID: "shb", ParentID: "sqb", Type: "Shot", Name: "shb", TaskNames: []string{"anim"}, HasTasks: true},
			{ID: "sha", ParentID: "sqa", Type: "Shot", Name: "sha", TaskNames: []string{"anim"}, HasTasks: true},
		}
		plan := template.New().Synthesize(ctx, "demo", entries)

		Convey("Then the template is named from the first listed entry", func() {
			So(plan.Origins[:5], ShouldResemble, []string{"", "sqa", "sha", "sqb", "shb"})
			tpls := itemsOfType(plan, template.TypeTemplate)
			So(tpls, ShouldHaveLength, 1)
			So(plan.Items[tpls[0]].Data.Name, ShouldEqual, "SQB")
			So(edgesOfType(plan, template.EdgeTemplate), ShouldHaveLength, 2)
		})
	})

	Convey("Given Shots whose task sets differ", t, func() {
		entries := []model.HierarchyEntry{
			{ID: "a", Type: "Shot", Name: "a", TaskNames: []string{"anim"}, HasTasks: true},
			{ID: "b", Type: "Shot", Name: "b", TaskNames: []string{"anim", "comp"}, HasTasks: true},
			{ID: "c", Type: "Asset", Name: "c", TaskNames: []string{"anim"}, HasTasks: true},
			{ID: "d", Type: "Asset", Name: "d"},
		}
		plan := template.New().Synthesize(ctx, "demo", entries)

		Convey("Then each signature gets its own template", func() {
			So(plan.Templates, ShouldEqual, 3)
			So(edgesOfType(plan, template.EdgeTemplate), ShouldHaveLength, 3)
		})

		Convey("Then top level templates are named after the project", func() {
			tpl := itemsOfType(plan, template.TypeTemplate)[0]
			So(plan.Items[tpl].Data.Name, ShouldEqual, "demo")
		})
	})
}

func TestSynthesizePlacement(t *testing.T) {
	ctx := context.Background()

	Convey("Given a child listed before its parent", t, func() {
		entries := []model.HierarchyEntry{
			{ID: "sh", ParentID: "sq", Type: "Shot", Name: "sh010"},
			{ID: "sq", Type: "Sequence", Name: "sq01"},
		}
		plan := template.New().Synthesize(ctx, "demo", entries)

		Convey("Then the orphan pass attaches it after its parent", func() {
			So(plan.Dropped, ShouldBeEmpty)
			So(plan.Origins, ShouldResemble, []string{"", "sq", "sh"})
			So(plan.Edges, ShouldContain, template.Edge{Source: 1, Target: 2, Type: template.EdgeChild})
		})
	})

	Convey("Given a grandchild and child both listed before the grandparent", t, func() {
		entries := []model.HierarchyEntry{
			{ID: "sh", ParentID: "sq", Type: "Shot", Name: "sh010"},
			{ID: "sq", ParentID: "ep", Type: "Sequence", Name: "sq01"},
			{ID: "ep", Type: "Episode", Name: "ep01"},
		}
		plan := template.New().Synthesize(ctx, "demo", entries)

		Convey("Then the single orphan pass drops the grandchild", func() {
			So(plan.Dropped, ShouldResemble, []string{"sh"})
			So(plan.Origins, ShouldResemble, []string{"", "ep", "sq"})
		})
	})

	Convey("Given an entry whose parent does not exist", t, func() {
		entries := []model.HierarchyEntry{
			{ID: "x", ParentID: "ghost", Type: "Shot", Name: "x"},
		}
		plan := template.New().Synthesize(ctx, "demo", entries)

		Convey("Then it is dropped, not attached to the root", func() {
			So(plan.Dropped, ShouldResemble, []string{"x"})
			So(plan.Items, ShouldHaveLength, 1)
			So(plan.Edges, ShouldBeEmpty)
		})
	})

	Convey("Given repeated ids", t, func() {
		Convey("When a missing parent is referenced twice by the same id", func() {
			plan := template.New().Synthesize(ctx, "demo", []model.HierarchyEntry{
				{ID: "x", ParentID: "ghost", Type: "Shot", Name: "x"},
				{ID: "x", ParentID: "ghost", Type: "Shot", Name: "x"},
			})

			Convey("Then it is dropped once", func() {
				So(plan.Dropped, ShouldResemble, []string{"x"})
			})
		})

		Convey("When an orphan is listed twice before its parent", func() {
			plan := template.New().Synthesize(ctx, "demo", []model.HierarchyEntry{
				{ID: "sh", ParentID: "sq", Type: "Shot", Name: "sh010"},
				{ID: "sh", ParentID: "sq", Type: "Shot", Name: "sh010"},
				{ID: "sq", Type: "Sequence", Name: "sq01"},
			})

			Convey("Then it is placed once", func() {
				So(plan.Dropped, ShouldBeEmpty)
				So(plan.Origins, ShouldResemble, []string{"", "sq", "sh"})
			})
		})
	})

	Convey("Given folder-like types", t, func() {
		entries := []model.HierarchyEntry{
			{ID: "f", Type: "Folder", Name: "assets"},
			{ID: "g", ParentID: "f", Type: "Bucket", Name: "props"},
		}

		Convey("Then they are emitted as Group", func() {
			plan := template.New(template.WithFolderLikeTypes("Folder", "Bucket")).Synthesize(ctx, "demo", entries)
			So(plan.Items[1].Type, ShouldEqual, template.TypeGroup)
			So(plan.Items[2].Type, ShouldEqual, template.TypeGroup)
		})

		Convey("Then the default only covers Folder", func() {
			plan := template.New().Synthesize(ctx, "demo", entries)
			So(plan.Items[1].Type, ShouldEqual, template.TypeGroup)
			So(plan.Items[2].Type, ShouldEqual, "Bucket")
		})
	})
}
