package cmd

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestExportModelPhaseUpdate(t *testing.T) {
	m := newExportModel(4, nil)

	updated, _ := m.Update(exportPhaseMsg{phase: "Extracting"})
	model := updated.(exportModel)

	if model.phase != "Extracting" {
		t.Fatalf("expected phase Extracting, got %s", model.phase)
	}
}

func TestExportModelPartitionProgress(t *testing.T) {
	m := newExportModel(2, nil)

	updated, _ := m.Update(partitionDoneMsg{path: "exports/a.csv", bytes: 1024})
	model := updated.(exportModel)
	updated, _ = model.Update(partitionDoneMsg{path: "exports/b.csv", bytes: 2048, skipped: true})
	model = updated.(exportModel)

	if len(model.paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(model.paths))
	}
	if model.bytes != 3072 {
		t.Fatalf("expected 3072 bytes, got %d", model.bytes)
	}
	if model.skipped != 1 {
		t.Fatalf("expected 1 skipped, got %d", model.skipped)
	}
}

func TestExportModelQuitsOnDone(t *testing.T) {
	m := newExportModel(1, nil)

	updated, cmd := m.Update(exportDoneMsg{summary: ExportSummary{Rows: 10}})
	model := updated.(exportModel)

	if !model.done {
		t.Fatal("model should be done")
	}
	if cmd == nil {
		t.Fatal("done message should quit the program")
	}
	if model.View() != "" {
		t.Fatal("finished model should render nothing")
	}
}

func TestExportModelQuitsOnError(t *testing.T) {
	m := newExportModel(1, nil)

	updated, cmd := m.Update(exportErrMsg{err: errors.New("upload failed")})
	model := updated.(exportModel)

	if !model.done || model.err == nil {
		t.Fatal("model should record the error and finish")
	}
	if cmd == nil {
		t.Fatal("error message should quit the program")
	}
}

func TestExportModelCancelKey(t *testing.T) {
	cancelled := false
	m := newExportModel(1, func() { cancelled = true })

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if !cancelled {
		t.Fatal("ctrl+c should invoke the cancel function")
	}
	if cmd == nil {
		t.Fatal("ctrl+c should quit the program")
	}
}
