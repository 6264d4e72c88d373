package scheduler

import (
	"reflect"
	"testing"

	"github.com/aristath/swarm/internal/ledger"
)

func fileTask(id string, files ...string) *ledger.Task {
	return &ledger.Task{ID: id, SessionID: "s1", Status: ledger.StatusClaimed, FilesOwned: files}
}

func TestFindConflictsOverlap(t *testing.T) {
	candidate := fileTask("new", "main.go", "util.go")
	claimed := []*ledger.Task{
		fileTask("t1", "util.go", "other.go"),
		fileTask("t2", "main.go"),
		fileTask("t3", "unrelated.go"),
	}

	files, ids := FindConflicts(candidate, claimed)
	if !reflect.DeepEqual(files, []string{"main.go", "util.go"}) {
		t.Errorf("unexpected files: %v", files)
	}
	if !reflect.DeepEqual(ids, []string{"t1", "t2"}) {
		t.Errorf("unexpected task ids: %v", ids)
	}
}

func TestFindConflictsNone(t *testing.T) {
	candidate := fileTask("new", "a.go")
	claimed := []*ledger.Task{fileTask("t1", "b.go")}

	files, ids := FindConflicts(candidate, claimed)
	if files != nil || ids != nil {
		t.Errorf("expected no conflicts, got %v / %v", files, ids)
	}
}

func TestFindConflictsNoFiles(t *testing.T) {
	candidate := fileTask("new")
	claimed := []*ledger.Task{fileTask("t1", "a.go")}

	files, ids := FindConflicts(candidate, claimed)
	if files != nil || ids != nil {
		t.Errorf("task with no owned files cannot conflict, got %v / %v", files, ids)
	}
}

func TestFindConflictsIgnoresSelf(t *testing.T) {
	candidate := fileTask("new", "a.go")
	claimed := []*ledger.Task{fileTask("new", "a.go")}

	files, ids := FindConflicts(candidate, claimed)
	if files != nil || ids != nil {
		t.Errorf("a task never conflicts with itself, got %v / %v", files, ids)
	}
}
