//go:build integration

package repository_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/okian/aqsync/internal/adapters/repository"
	"github.com/okian/aqsync/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("AQSYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("AQSYNC_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	Convey("Given a Postgres store", t, func() {
		s, err := repository.NewPostgresStore(ctx, dsn)
		So(err, ShouldBeNil)
		Reset(func() { _ = s.Close() })

		name := fmt.Sprintf("it_%d", time.Now().UnixNano())
		So(s.CreateProject(ctx, name, name, model.Anatomy{
			Statuses:  []model.Status{{Name: "TO DO", State: "not_started"}},
			TaskTypes: []model.TaskType{{Name: "Animation", ShortName: "anim"}},
		}), ShouldBeNil)

		Convey("When it is paired and a folder tree is saved", func() {
			So(s.SetProjectKey(ctx, name, "AQ-"+name), ShouldBeNil)
			folder := &model.FolderEntity{Name: "sq01", FolderType: "Sequence", Attrib: map[string]any{"fps": 24}, Data: model.EntityData{AquariumKey: "F1"}}
			So(s.SaveFolder(ctx, name, folder), ShouldBeNil)
			task := &model.TaskEntity{Name: "anim", TaskType: "Animation", FolderID: folder.ID, Assignees: []string{"alice"}, Data: model.EntityData{AquariumKey: "T1"}}
			So(s.SaveTask(ctx, name, task), ShouldBeNil)

			Convey("Then it reads back", func() {
				p, err := s.GetProject(ctx, name)
				So(err, ShouldBeNil)
				So(p.AquariumProjectKey, ShouldEqual, "AQ-"+name)
				So(p.TaskTypes[0].ShortName, ShouldEqual, "anim")

				got, err := s.TaskByKey(ctx, name, "T1")
				So(err, ShouldBeNil)
				So(got.Assignees, ShouldResemble, []string{"alice"})

				entries, err := s.Hierarchy(ctx, name)
				So(err, ShouldBeNil)
				So(entries[0].TaskNames, ShouldResemble, []string{"anim"})
			})

			Convey("Then saving again keeps data keys owned by AYON", func() {
				pool, err := pgxpool.New(ctx, dsn)
				So(err, ShouldBeNil)
				defer pool.Close()
				folders := pgx.Identifier{"project_" + name, "folders"}.Sanitize()
				tasks := pgx.Identifier{"project_" + name, "tasks"}.Sanitize()
				_, err = pool.Exec(ctx, `UPDATE `+folders+` SET data = data || '{"thumbnail":"t1"}' WHERE id = $1::uuid`, folder.ID)
				So(err, ShouldBeNil)
				_, err = pool.Exec(ctx, `UPDATE `+tasks+` SET data = data || '{"thumbnail":"t2"}' WHERE id = $1::uuid`, task.ID)
				So(err, ShouldBeNil)

				folder.Label = "SQ01"
				folder.OwnAttrib = []string{"fps"}
				So(s.SaveFolder(ctx, name, folder), ShouldBeNil)
				task.OwnAttrib = nil
				So(s.SaveTask(ctx, name, task), ShouldBeNil)

				var thumb, key string
				So(pool.QueryRow(ctx, `SELECT data->>'thumbnail', data->>'aquariumKey' FROM `+folders+` WHERE id = $1::uuid`, folder.ID).Scan(&thumb, &key), ShouldBeNil)
				So(thumb, ShouldEqual, "t1")
				So(key, ShouldEqual, "F1")
				So(pool.QueryRow(ctx, `SELECT data->>'thumbnail' FROM `+tasks+` WHERE id = $1::uuid`, task.ID).Scan(&thumb), ShouldBeNil)
				So(thumb, ShouldEqual, "t2")

				got, err := s.FolderByKey(ctx, name, "F1")
				So(err, ShouldBeNil)
				So(got.Label, ShouldEqual, "SQ01")
				So(got.OwnAttrib, ShouldResemble, []string{"fps"})
			})
		})
	})
}
