package project

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"testing"

	"github.com/conveyorhq/conveyor/internal/domain"
	"github.com/conveyorhq/conveyor/internal/engine"
	"github.com/conveyorhq/conveyor/internal/execution"
)

// addItems добавляет универсальные элементы без состояния.
func addItems(t *testing.T, p *Project, names ...string) {
	t.Helper()
	for _, name := range names {
		if err := p.AddItem(domain.NewGenericItem(name, "tool", nil)); err != nil {
			t.Fatalf("AddItem(%s): %v", name, err)
		}
	}
}

// connect добавляет соединение source → destination.
func connect(t *testing.T, p *Project, source, destination string) {
	t.Helper()
	c := domain.NewConnection(source, domain.PositionRight, destination, domain.PositionLeft)
	if err := p.AddConnection(c); err != nil {
		t.Fatalf("AddConnection(%s → %s): %v", source, destination, err)
	}
}

func TestValidateItemName(t *testing.T) {
	valid := []string{"a", "data store", "Импортёр 1"}
	for _, name := range valid {
		if err := ValidateItemName(name); err != nil {
			t.Errorf("ValidateItemName(%q) = %v, want nil", name, err)
		}
	}
	invalid := []string{"", " padded", "padded ", "two\nlines", "tab\there"}
	for _, name := range invalid {
		if err := ValidateItemName(name); !errors.Is(err, ErrInvalidName) {
			t.Errorf("ValidateItemName(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestProject_AddItem_Duplicate(t *testing.T) {
	p := New("demo", t.TempDir())
	addItems(t, p, "store")
	err := p.AddItem(domain.NewGenericItem("store", "tool", nil))
	if !errors.Is(err, ErrItemExists) {
		t.Errorf("expected ErrItemExists, got %v", err)
	}
}

func TestProject_AddConnection_Rejections(t *testing.T) {
	p := New("demo", t.TempDir())
	addItems(t, p, "a", "b")
	connect(t, p, "a", "b")

	self := domain.NewConnection("a", domain.PositionRight, "a", domain.PositionLeft)
	if err := p.AddConnection(self); !errors.Is(err, ErrSelfConnection) {
		t.Errorf("expected ErrSelfConnection, got %v", err)
	}

	dup := domain.NewConnection("a", domain.PositionTop, "b", domain.PositionBottom)
	if err := p.AddConnection(dup); !errors.Is(err, ErrConnectionExists) {
		t.Errorf("expected ErrConnectionExists, got %v", err)
	}

	ghost := domain.NewConnection("a", domain.PositionRight, "ghost", domain.PositionLeft)
	if err := p.AddConnection(ghost); !errors.Is(err, ErrUnknownItem) {
		t.Errorf("expected ErrUnknownItem, got %v", err)
	}
}

func TestProject_AddConnection_CycleRollback(t *testing.T) {
	p := New("demo", t.TempDir())
	addItems(t, p, "a", "b", "c")
	connect(t, p, "a", "b")
	connect(t, p, "b", "c")

	closing := domain.NewConnection("c", domain.PositionRight, "a", domain.PositionLeft)
	err := p.AddConnection(closing)

	var cycleErr *engine.CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected *engine.CycleError, got %v", err)
	}
	// Проект откатился: соединение не добавлено, ранги прежние.
	if len(p.Connections()) != 2 {
		t.Errorf("expected rollback to 2 connections, got %d", len(p.Connections()))
	}
	if rank, _ := p.Rank("c"); rank != 2 {
		t.Errorf("expected rank 2 for c after rollback, got %d", rank)
	}
}

func TestProject_Ranks(t *testing.T) {
	p := New("demo", t.TempDir())
	addItems(t, p, "a", "b", "c", "d", "solo")
	connect(t, p, "a", "b")
	connect(t, p, "a", "c")
	connect(t, p, "b", "d")
	connect(t, p, "c", "d")

	want := map[string]int{"a": 0, "b": 1, "c": 1, "d": 2, "solo": 0}
	for name, rank := range want {
		if got, ok := p.Rank(name); !ok || got != rank {
			t.Errorf("Rank(%s) = %d/%v, want %d", name, got, ok, rank)
		}
	}
	if len(p.DAGs()) != 2 {
		t.Errorf("expected 2 DAGs, got %d", len(p.DAGs()))
	}
}

func TestProject_RenameItem(t *testing.T) {
	p := New("demo", t.TempDir())
	store := domain.NewGenericItem("store", "data_store", map[string]any{"url": "sqlite:///data.db"})
	writer := domain.NewGenericItem("writer", "tool", nil)
	if err := p.AddItem(store); err != nil {
		t.Fatal(err)
	}
	if err := p.AddItem(writer); err != nil {
		t.Fatal(err)
	}
	connect(t, p, "store", "writer")

	before := writer.ReplacementCount()
	if err := p.RenameItem("store", "vault"); err != nil {
		t.Fatalf("RenameItem: %v", err)
	}

	if _, ok := p.Item("store"); ok {
		t.Error("old name should be gone")
	}
	if _, ok := p.Item("vault"); !ok {
		t.Error("item should be reachable under the new name")
	}
	c, ok := p.Connection("vault", "writer")
	if !ok {
		t.Fatal("connection endpoint should follow the rename")
	}
	if c.Source != "vault" {
		t.Errorf("unexpected connection source %q", c.Source)
	}

	// Сосед получает ровно одно диффовое уведомление, не пересборку.
	if got := writer.ReplacementCount() - before; got != 1 {
		t.Errorf("expected exactly 1 diff notification, got %d", got)
	}
	upstream := writer.UpstreamResources()
	if len(upstream) != 1 || upstream[0].Provider != "vault" {
		t.Errorf("upstream resource should reference the new name: %+v", upstream)
	}
}

func TestProject_RenameItem_Conflicts(t *testing.T) {
	p := New("demo", t.TempDir())
	addItems(t, p, "a", "b")

	if err := p.RenameItem("ghost", "x"); !errors.Is(err, ErrUnknownItem) {
		t.Errorf("expected ErrUnknownItem, got %v", err)
	}
	if err := p.RenameItem("a", "b"); !errors.Is(err, ErrItemExists) {
		t.Errorf("expected ErrItemExists, got %v", err)
	}
	if err := p.RenameItem("a", "a"); err != nil {
		t.Errorf("renaming to the same name is a no-op, got %v", err)
	}
}

func TestProject_RemoveItem_PrunesEdges(t *testing.T) {
	p := New("demo", t.TempDir())
	addItems(t, p, "a", "b", "c")
	connect(t, p, "a", "b")
	connect(t, p, "b", "c")
	if err := p.AddJump(domain.NewJump("c", domain.PositionLeft, "a", domain.PositionRight)); err != nil {
		t.Fatalf("AddJump: %v", err)
	}

	if err := p.RemoveItemByName("b"); err != nil {
		t.Fatalf("RemoveItemByName: %v", err)
	}
	if len(p.Connections()) != 0 {
		t.Errorf("connections touching the item should be removed, got %d", len(p.Connections()))
	}
	// Переход c → a пережил удаление элемента, но его концы оказались
	// в разных DAG: он должен быть вычищен.
	if len(p.Jumps()) != 0 {
		t.Errorf("jump spanning two DAGs should be pruned, got %d", len(p.Jumps()))
	}
}

func TestProject_Jump_Validation(t *testing.T) {
	p := New("demo", t.TempDir())
	addItems(t, p, "a", "b", "c", "d", "island")
	connect(t, p, "a", "b")
	connect(t, p, "b", "c")
	connect(t, p, "c", "d")

	// Концы в разных DAG.
	j := domain.NewJump("island", domain.PositionLeft, "a", domain.PositionRight)
	if err := p.AddJump(j); !errors.Is(err, ErrInvalidJump) {
		t.Errorf("expected ErrInvalidJump for cross-DAG jump, got %v", err)
	}

	// Переход вперёд по рангу.
	j = domain.NewJump("a", domain.PositionLeft, "d", domain.PositionRight)
	if err := p.AddJump(j); !errors.Is(err, ErrInvalidJump) {
		t.Errorf("expected ErrInvalidJump for forward jump, got %v", err)
	}

	// Валидный переход c → b.
	if err := p.AddJump(domain.NewJump("c", domain.PositionLeft, "b", domain.PositionRight)); err != nil {
		t.Fatalf("AddJump(c → b): %v", err)
	}

	// Пересечение диапазонов рангов с существующим переходом.
	j = domain.NewJump("d", domain.PositionLeft, "a", domain.PositionRight)
	if err := p.AddJump(j); !errors.Is(err, ErrInvalidJump) {
		t.Errorf("expected ErrInvalidJump for overlapping jump, got %v", err)
	}

	// Переход элемента на себя вне занятого диапазона допустим.
	if err := p.AddJump(domain.NewJump("d", domain.PositionLeft, "d", domain.PositionRight)); err != nil {
		t.Errorf("self jump outside occupied ranges should be valid, got %v", err)
	}
}

func TestProject_UpdateJump(t *testing.T) {
	p := New("demo", t.TempDir())
	addItems(t, p, "a", "b")
	connect(t, p, "a", "b")
	if err := p.AddJump(domain.NewJump("b", domain.PositionLeft, "a", domain.PositionRight)); err != nil {
		t.Fatal(err)
	}

	cond := domain.JumpCondition{Type: domain.ConditionTypeIterations, MaxIterations: 3}
	if err := p.UpdateJump("b", "a", cond); err != nil {
		t.Fatalf("UpdateJump: %v", err)
	}
	j, ok := p.Jump("b", "a")
	if !ok || j.Condition.MaxIterations != 3 {
		t.Errorf("condition should be updated, got %+v", j)
	}

	if err := p.UpdateJump("a", "b", cond); !errors.Is(err, ErrUnknownJump) {
		t.Errorf("expected ErrUnknownJump, got %v", err)
	}
	if err := p.RemoveJump("b", "a"); err != nil {
		t.Fatalf("RemoveJump: %v", err)
	}
	if len(p.Jumps()) != 0 {
		t.Error("jump should be removed")
	}
}

func TestProject_RemoveConnection_PrunesJumps(t *testing.T) {
	p := New("demo", t.TempDir())
	addItems(t, p, "a", "b", "c")
	connect(t, p, "a", "b")
	connect(t, p, "b", "c")
	if err := p.AddJump(domain.NewJump("c", domain.PositionLeft, "a", domain.PositionRight)); err != nil {
		t.Fatal(err)
	}

	if err := p.RemoveConnection("b", "c"); err != nil {
		t.Fatalf("RemoveConnection: %v", err)
	}
	if len(p.Jumps()) != 0 {
		t.Errorf("jump should be pruned when its DAG splits, got %d", len(p.Jumps()))
	}
}

func TestProject_ResourcePropagation(t *testing.T) {
	p := New("demo", t.TempDir())
	store := domain.NewGenericItem("store", "data_store", map[string]any{
		"files": []any{"a.csv", "b.csv"},
	})
	tool := domain.NewGenericItem("tool", "tool", map[string]any{"url": "sqlite:///out.db"})
	if err := p.AddItem(store); err != nil {
		t.Fatal(err)
	}
	if err := p.AddItem(tool); err != nil {
		t.Fatal(err)
	}
	connect(t, p, "store", "tool")

	upstream := tool.UpstreamResources()
	var labels []string
	for _, r := range upstream {
		labels = append(labels, r.Label)
	}
	if !reflect.DeepEqual(labels, []string{"a.csv", "b.csv"}) {
		t.Errorf("expected upstream files [a.csv b.csv], got %v", labels)
	}

	// Источник видит базу приёмника как ресурс "из преемников".
	downstream := store.DownstreamResources()
	if len(downstream) != 1 || downstream[0].URLOrPath != "sqlite:///out.db" {
		t.Errorf("expected downstream database, got %+v", downstream)
	}
}

func TestProject_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	p := New("demo", dir)
	if err := p.AddItem(domain.NewGenericItem("store", "data_store",
		map[string]any{"url": "sqlite:///data.db"})); err != nil {
		t.Fatal(err)
	}
	addItems(t, p, "writer")
	connect(t, p, "store", "writer")
	if err := p.AddJump(domain.NewJump("writer", domain.PositionLeft, "store", domain.PositionRight)); err != nil {
		t.Fatal(err)
	}
	p.SetSetting("locale", "ru")
	p.SetJobID("42")
	p.AddSpecification("tool", map[string]any{"name": "generic"})

	if err := p.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if loaded.Name() != "demo" {
		t.Errorf("unexpected project name %q", loaded.Name())
	}
	if !reflect.DeepEqual(loaded.ItemNames(), []string{"store", "writer"}) {
		t.Errorf("unexpected items %v", loaded.ItemNames())
	}
	if _, ok := loaded.Connection("store", "writer"); !ok {
		t.Error("connection should survive the round trip")
	}
	if _, ok := loaded.Jump("writer", "store"); !ok {
		t.Error("jump should survive the round trip")
	}
	if loaded.JobID() != "42" {
		t.Errorf("job id should survive, got %q", loaded.JobID())
	}
	if loaded.Settings()["locale"] != "ru" {
		t.Error("settings should survive the round trip")
	}

	// Ресурсы распространены при загрузке.
	item, _ := loaded.Item("writer")
	writer := item.(*domain.GenericItem)
	if len(writer.UpstreamResources()) != 1 {
		t.Errorf("resources should be propagated on load, got %v", writer.UpstreamResources())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for missing project file")
	}
}

// stubExecutable выполняется мгновенно и успешно.
type stubExecutable struct {
	name string
}

func (s *stubExecutable) Name() string { return s.name }

func (s *stubExecutable) Execute(ctx context.Context, upstream []domain.Resource) (bool, []domain.Resource) {
	return true, nil
}

func stubFactory(name string, state map[string]any, projectDir string) (engine.Executable, error) {
	return &stubExecutable{name: name}, nil
}

func TestProject_Execute_Local(t *testing.T) {
	p := New("demo", t.TempDir(), WithExecutableFactory(stubFactory))
	addItems(t, p, "a", "b")
	connect(t, p, "a", "b")

	done := make(chan domain.DagState, 1)
	err := p.Execute(RunOptions{
		OnProjectFinished: func(state domain.DagState) { done <- state },
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state := p.Wait(); state != domain.DagStateCompleted {
		t.Errorf("expected COMPLETED, got %s", state)
	}
	if state := <-done; state != domain.DagStateCompleted {
		t.Errorf("OnProjectFinished should report COMPLETED, got %s", state)
	}
	if p.IsRunning() {
		t.Error("project should be idle after the run finishes")
	}
}

func TestProject_Execute_Empty(t *testing.T) {
	p := New("demo", t.TempDir(), WithExecutableFactory(stubFactory))
	if err := p.Execute(RunOptions{}); !errors.Is(err, ErrNothingToExecute) {
		t.Errorf("expected ErrNothingToExecute, got %v", err)
	}
}

func TestProject_ExecuteSelected_UnknownNames(t *testing.T) {
	p := New("demo", t.TempDir(), WithExecutableFactory(stubFactory))
	addItems(t, p, "a")

	unknown, err := p.ExecuteSelected([]string{"ghost", "phantom"}, RunOptions{})
	if !errors.Is(err, ErrNothingToExecute) {
		t.Errorf("expected ErrNothingToExecute, got %v", err)
	}
	if !reflect.DeepEqual(unknown, []string{"ghost", "phantom"}) {
		t.Errorf("unknown names should be reported, got %v", unknown)
	}
}

func TestProject_Execute_SkipsCyclicComponent(t *testing.T) {
	// Цикл не создать через AddConnection, но он может приехать из
	// файла проекта, отредактированного руками.
	dir := t.TempDir()
	raw := []byte(`{
  "project": {"name": "demo"},
  "items": {
    "a": {"type": "tool"},
    "b": {"type": "tool"},
    "solo": {"type": "tool"}
  },
  "connections": [
    {"from": ["a", "right"], "to": ["b", "left"]},
    {"from": ["b", "right"], "to": ["a", "left"]}
  ]
}`)
	if err := os.WriteFile(filepath.Join(dir, ProjectFileName), raw, 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := Load(dir, WithExecutableFactory(stubFactory))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if rank, ok := p.Rank("a"); !ok || rank != -1 {
		t.Errorf("cyclic item should carry rank -1, got %d/%v", rank, ok)
	}

	started := make(chan []string, 2)
	err = p.Execute(RunOptions{
		Hooks: execution.Hooks{
			OnDagStarted: func(items []string) { started <- items },
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if state := p.Wait(); state != domain.DagStateCompleted {
		t.Errorf("expected COMPLETED, got %s", state)
	}
	// Запустился только изолированный элемент; цикл a ⇄ b пропущен.
	if items := <-started; !reflect.DeepEqual(items, []string{"solo"}) {
		t.Errorf("expected [solo] to run, got %v", items)
	}
	select {
	case items := <-started:
		t.Errorf("cyclic component should not start, got %v", items)
	default:
	}
}

func TestProject_Execute_OnlyCycles(t *testing.T) {
	dir := t.TempDir()
	raw := []byte(`{
  "project": {"name": "demo"},
  "items": {"a": {"type": "tool"}, "b": {"type": "tool"}},
  "connections": [
    {"from": ["a", "right"], "to": ["b", "left"]},
    {"from": ["b", "right"], "to": ["a", "left"]}
  ]
}`)
	if err := os.WriteFile(filepath.Join(dir, ProjectFileName), raw, 0o644); err != nil {
		t.Fatal(err)
	}
	p, err := Load(dir, WithExecutableFactory(stubFactory))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := p.Execute(RunOptions{}); !errors.Is(err, ErrNothingToExecute) {
		t.Errorf("expected ErrNothingToExecute, got %v", err)
	}
}

func TestProject_RemoveReAddConnection_RestoresGraph(t *testing.T) {
	p := New("demo", t.TempDir())
	addItems(t, p, "a", "b", "c", "solo")
	connect(t, p, "a", "b")
	connect(t, p, "b", "c")

	snapshot := func() (map[string]int, [][]string) {
		ranks := make(map[string]int)
		for _, name := range p.ItemNames() {
			if r, ok := p.Rank(name); ok {
				ranks[name] = r
			}
		}
		var dags [][]string
		for _, d := range p.DAGs() {
			nodes := d.Nodes()
			sort.Strings(nodes)
			dags = append(dags, nodes)
		}
		sort.Slice(dags, func(i, j int) bool { return dags[i][0] < dags[j][0] })
		return ranks, dags
	}

	wantRanks, wantDAGs := snapshot()
	if err := p.RemoveConnection("b", "c"); err != nil {
		t.Fatalf("RemoveConnection: %v", err)
	}
	connect(t, p, "b", "c")

	gotRanks, gotDAGs := snapshot()
	if !reflect.DeepEqual(gotRanks, wantRanks) {
		t.Errorf("ranks after re-add = %v, want %v", gotRanks, wantRanks)
	}
	if !reflect.DeepEqual(gotDAGs, wantDAGs) {
		t.Errorf("DAGs after re-add = %v, want %v", gotDAGs, wantDAGs)
	}
}

func TestProject_ExecuteSelected_MixesKnownAndUnknown(t *testing.T) {
	p := New("demo", t.TempDir(), WithExecutableFactory(stubFactory))
	addItems(t, p, "a", "b")
	connect(t, p, "a", "b")

	ignored := make(chan []string, 1)
	unknown, err := p.ExecuteSelected([]string{"b", "ghost"}, RunOptions{
		Hooks: execution.Hooks{
			OnItemsIgnored: func(items []string) { ignored <- items },
		},
	})
	if err != nil {
		t.Fatalf("ExecuteSelected: %v", err)
	}
	if !reflect.DeepEqual(unknown, []string{"ghost"}) {
		t.Errorf("expected unknown [ghost], got %v", unknown)
	}
	if state := p.Wait(); state != domain.DagStateCompleted {
		t.Errorf("expected COMPLETED, got %s", state)
	}
	// Сосед b без разрешения на выполнение попадает в игнорируемые.
	if items := <-ignored; !reflect.DeepEqual(items, []string{"a"}) {
		t.Errorf("expected ignored [a], got %v", items)
	}
}
