package config

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ambigdb/ambigdb/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore("") // in-memory
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testRun(id, dbID string, cfg model.Configuration, accepted bool, started time.Time) *model.Run {
	run := &model.Run{
		ID:            id,
		DBID:          dbID,
		Driver:        "sqlite",
		Configuration: cfg,
		Accepted:      accepted,
		NextAction:    "accept",
		AttemptIndex:  1,
		AttemptBudget: 3,
		StartedAt:     started,
		FinishedAt:    started.Add(20 * time.Millisecond),
	}
	if !accepted {
		run.FailureKind = "data_insertion"
		run.FailureRole = "common_property"
		run.NextAction = "regenerate_inserts"
		run.Error = "data_insertion: common_property: empty intersection"
	}
	return run
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	run := testRun("0190a5d2-0000-7000-8000-000000000001", "school", model.ScopeDefault, true, started)
	run.Binding = json.RawMessage(`{"template":"Each student has many courses."}`)
	run.Statements = []string{
		`INSERT INTO "enrollments" ("student_id", "course_id") VALUES (3, 1);`,
		`INSERT INTO "enrollments" ("student_id", "course_id") VALUES (4, 1);`,
	}
	if err := s.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	got, err := s.GetRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.DBID != "school" || got.Configuration != model.ScopeDefault || !got.Accepted {
		t.Errorf("unexpected run: %+v", got)
	}
	if string(got.Binding) != string(run.Binding) {
		t.Errorf("binding: got %s, want %s", got.Binding, run.Binding)
	}
	if len(got.Statements) != 2 || got.Statements[1] != run.Statements[1] {
		t.Errorf("statements: got %q", got.Statements)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("started_at: got %v, want %v", got.StartedAt, started)
	}

	stmts, err := s.ListStatements(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListStatements: %v", err)
	}
	if len(stmts) != 2 {
		t.Errorf("got %d statements, want 2", len(stmts))
	}

	if err := s.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}
	if _, err := s.GetRun(ctx, run.ID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if stmts, _ := s.ListStatements(ctx, run.ID); len(stmts) != 0 {
		t.Errorf("statements not cascaded: %q", stmts)
	}
	if err := s.DeleteRun(ctx, run.ID); err != ErrNotFound {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestCreateRunRequiresID(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateRun(context.Background(), &model.Run{DBID: "x"}); err == nil {
		t.Fatal("expected error for run without id")
	}
}

func TestListRunsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	runs := []*model.Run{
		testRun("run-1", "fruit", model.Attachment1TabVal, true, base),
		testRun("run-2", "fruit", model.Attachment1TabVal, false, base.Add(time.Minute)),
		testRun("run-3", "films", model.Vague2Cols, true, base.Add(2*time.Minute)),
	}
	for _, r := range runs {
		if err := s.CreateRun(ctx, r); err != nil {
			t.Fatalf("CreateRun %s: %v", r.ID, err)
		}
	}

	accepted := true
	rejected := false
	tests := []struct {
		name   string
		filter model.RunFilter
		want   []string
	}{
		{"all newest first", model.RunFilter{}, []string{"run-3", "run-2", "run-1"}},
		{"by db", model.RunFilter{DBID: "fruit"}, []string{"run-2", "run-1"}},
		{"by configuration", model.RunFilter{Configuration: model.Vague2Cols}, []string{"run-3"}},
		{"accepted", model.RunFilter{Accepted: &accepted}, []string{"run-3", "run-1"}},
		{"rejected", model.RunFilter{Accepted: &rejected}, []string{"run-2"}},
		{"limit", model.RunFilter{Limit: 1}, []string{"run-3"}},
		{"limit offset", model.RunFilter{Limit: 1, Offset: 1}, []string{"run-2"}},
		{"no match", model.RunFilter{DBID: "nope"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListRuns(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListRuns: %v", err)
			}
			var ids []string
			for _, r := range got {
				ids = append(ids, r.ID)
			}
			if len(ids) != len(tt.want) {
				t.Fatalf("got %v, want %v", ids, tt.want)
			}
			for i := range ids {
				if ids[i] != tt.want[i] {
					t.Errorf("got %v, want %v", ids, tt.want)
					break
				}
			}
		})
	}

	got, _ := s.ListRuns(ctx, model.RunFilter{DBID: "fruit", Accepted: &rejected})
	if len(got) != 1 || got[0].FailureRole != "common_property" || got[0].NextAction != "regenerate_inserts" {
		t.Errorf("unexpected rejected run: %+v", got)
	}
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, "instance_id"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetSetting(ctx, "instance_id", "a"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting(ctx, "instance_id", "b"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	v, err := s.GetSetting(ctx, "instance_id")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != "b" {
		t.Errorf("got %q, want %q", v, "b")
	}
}

func TestStoreOnDisk(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := s.SetSetting(context.Background(), "k", "v"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	s.Close()

	// Reopening runs the migrations again against the existing file.
	s2, err := NewStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if v, err := s2.GetSetting(context.Background(), "k"); err != nil || v != "v" {
		t.Errorf("got %q, %v", v, err)
	}
}
