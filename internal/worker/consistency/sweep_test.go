package consistency

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/coursegpt/coursegpt/internal/metrics"
	"github.com/coursegpt/coursegpt/internal/model"
	"github.com/coursegpt/coursegpt/internal/repository"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// recordingMetrics はスイープが記録したメトリクスを保持する。
type recordingMetrics struct {
	metrics.Nop
	anomalies []string
	repaired  int
}

func (m *recordingMetrics) RecordConsistencyAnomaly(kind string) {
	m.anomalies = append(m.anomalies, kind)
}

func (m *recordingMetrics) RecordReferencesRepaired(count int) {
	m.repaired += count
}

// seedDangling は存在しないモジュール・レッスンへの参照を含む状態を作る。
//
//	u1 → [m1, ghost-module]
//	m1 → [l1, ghost-lesson]
func seedDangling(t *testing.T) *repository.Store {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore().Store()
	now := time.Now()

	if err := store.Lessons.Create(ctx, &model.Lesson{ID: "l1", CreatedAt: now, UpdatedAt: now}); err != nil {
		t.Fatalf("failed to seed lesson: %v", err)
	}
	if err := store.Modules.Create(ctx, &model.Module{ID: "m1", Name: "History", Lessons: []string{"l1", "ghost-lesson"}, CreatedAt: now}); err != nil {
		t.Fatalf("failed to seed module: %v", err)
	}
	if err := store.Users.Create(ctx, &model.User{ID: "u1", Email: "u1@example.com", Modules: []string{"m1", "ghost-module"}, CreatedAt: now}); err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return store
}

func TestSweepJob_Run_DetectsDanglingReferences(t *testing.T) {
	var buf bytes.Buffer
	store := seedDangling(t)
	rec := &recordingMetrics{}
	job := NewSweepJob(store, rec, newTestLogger(&buf))

	res, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	want := Result{ModulesChecked: 1, UsersChecked: 1, Anomalies: 2, Repaired: 0}
	if res != want {
		t.Errorf("Result = %+v, want %+v", res, want)
	}
	wantKinds := []string{metrics.AnomalyDanglingLesson, metrics.AnomalyDanglingModule}
	if !reflect.DeepEqual(rec.anomalies, wantKinds) {
		t.Errorf("anomalies = %v, want %v", rec.anomalies, wantKinds)
	}
	if rec.repaired != 0 {
		t.Errorf("repaired = %d, want 0", rec.repaired)
	}

	// 検出のみの場合はデータを変更しない
	m, _ := store.Modules.FindByID(context.Background(), "m1")
	if !reflect.DeepEqual(m.Lessons, []string{"l1", "ghost-lesson"}) {
		t.Errorf("module lessons = %v, want unchanged", m.Lessons)
	}
}

func TestSweepJob_Run_RepairRemovesDanglingReferences(t *testing.T) {
	var buf bytes.Buffer
	store := seedDangling(t)
	rec := &recordingMetrics{}
	job := NewSweepJob(store, rec, newTestLogger(&buf))
	job.Repair = true

	res, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.Anomalies != 2 || res.Repaired != 2 {
		t.Errorf("Result = %+v, want 2 anomalies and 2 repaired", res)
	}
	if rec.repaired != 2 {
		t.Errorf("repaired metric = %d, want 2", rec.repaired)
	}

	ctx := context.Background()
	m, _ := store.Modules.FindByID(ctx, "m1")
	if !reflect.DeepEqual(m.Lessons, []string{"l1"}) {
		t.Errorf("module lessons = %v, want [l1]", m.Lessons)
	}
	u, _ := store.Users.FindByID(ctx, "u1")
	if !reflect.DeepEqual(u.Modules, []string{"m1"}) {
		t.Errorf("user modules = %v, want [m1]", u.Modules)
	}

	// 2回目は何も検出しない
	again, err := job.Run(ctx)
	if err != nil {
		t.Fatalf("second Run returned error: %v", err)
	}
	if again.Anomalies != 0 || again.Repaired != 0 {
		t.Errorf("second Result = %+v, want no anomalies", again)
	}
}

func TestSweepJob_Run_LogsSummary(t *testing.T) {
	var buf bytes.Buffer
	store := seedDangling(t)
	job := NewSweepJob(store, nil, newTestLogger(&buf))

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var summary map[string]interface{}
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &summary); err != nil {
		t.Fatalf("failed to parse summary log: %v", err)
	}
	if summary["msg"] != "整合性スイープが完了しました" {
		t.Errorf("msg = %v", summary["msg"])
	}
	for _, key := range []string{"modules_checked", "users_checked", "anomalies", "repaired", "duration_ms"} {
		if _, ok := summary[key]; !ok {
			t.Errorf("summary log should contain %q", key)
		}
	}
	if summary["anomalies"] != float64(2) {
		t.Errorf("anomalies = %v, want 2", summary["anomalies"])
	}
}

func TestSweepJob_Run_EmptyStore(t *testing.T) {
	var buf bytes.Buffer
	job := NewSweepJob(repository.NewMemoryStore().Store(), nil, newTestLogger(&buf))

	res, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res != (Result{}) {
		t.Errorf("Result = %+v, want zero", res)
	}
}

// failingModules はListAllでエラーを返す。
type failingModules struct {
	repository.ModuleRepository
}

func (failingModules) ListAll(context.Context) ([]*model.Module, error) {
	return nil, errors.New("connection refused")
}

func TestSweepJob_Run_ListError(t *testing.T) {
	var buf bytes.Buffer
	store := repository.NewMemoryStore().Store()
	store.Modules = failingModules{store.Modules}
	job := NewSweepJob(store, nil, newTestLogger(&buf))

	if _, err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error when listing modules fails")
	}
}

func TestSweepJob_Start_StopsOnCancel(t *testing.T) {
	var buf bytes.Buffer
	job := NewSweepJob(repository.NewMemoryStore().Store(), nil, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		job.Start(ctx, time.Hour)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancel")
	}
}
