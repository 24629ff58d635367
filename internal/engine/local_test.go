package engine

import (
	"context"
	"sync"
	"testing"

	"github.com/conveyorhq/conveyor/internal/domain"
)

// fakeExecutable — исполняемый элемент для тестов: фиксированный
// результат, запись полученных ресурсов.
type fakeExecutable struct {
	name string
	ok   bool
	out  []domain.Resource

	mu       sync.Mutex
	upstream []domain.Resource
	calls    int
}

func (f *fakeExecutable) Name() string { return f.name }

func (f *fakeExecutable) Execute(ctx context.Context, upstream []domain.Resource) (bool, []domain.Resource) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upstream = upstream
	f.calls++
	return f.ok, f.out
}

// fakeFactory строит фабрику над заранее заданными элементами.
func fakeFactory(executables map[string]*fakeExecutable) ExecutableFactory {
	return func(name string, state map[string]any, projectDir string) (Executable, error) {
		return executables[name], nil
	}
}

// collectEvents запускает движок и собирает весь поток событий.
func collectEvents(t *testing.T, input *Input, factory ExecutableFactory) []Event {
	t.Helper()
	eng, err := NewLocalEngine(input, factory, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	go eng.Run()

	var events []Event
	for ev := range eng.Events() {
		events = append(events, ev)
	}
	return events
}

// chainInput собирает вход движка a → b с разрешениями permits.
func chainInput(permits map[string]bool) *Input {
	input := NewInput("/tmp/project")
	input.Items["a"] = map[string]any{"type": "tool"}
	input.Items["b"] = map[string]any{"type": "tool"}
	conn := domain.NewConnection("a", domain.PositionRight, "b", domain.PositionLeft)
	input.Connections = append(input.Connections, conn.ToDict())
	for name, ok := range permits {
		input.ExecutionPermits[name] = ok
	}
	return input
}

func TestLocalEngine_SuccessfulRun(t *testing.T) {
	executables := map[string]*fakeExecutable{
		"a": {name: "a", ok: true, out: []domain.Resource{domain.NewFileResource("a", "out.csv")}},
		"b": {name: "b", ok: true},
	}
	input := chainInput(map[string]bool{"a": true, "b": true})

	events := collectEvents(t, input, fakeFactory(executables))

	var types []EventType
	for _, ev := range events {
		types = append(types, ev.Type)
	}
	expected := []EventType{
		EventExecStarted, EventExecFinished,
		EventExecStarted, EventExecFinished,
		EventDagExecFinished,
	}
	if len(types) != len(expected) {
		t.Fatalf("expected %d events, got %d: %v", len(expected), len(types), types)
	}
	for i := range expected {
		if types[i] != expected[i] {
			t.Errorf("event %d: expected %v, got %v", i, expected[i], types[i])
		}
	}

	last := events[len(events)-1]
	if last.State() != string(domain.DagStateCompleted) {
		t.Errorf("expected COMPLETED, got %q", last.State())
	}

	// b получает выход a через соединение.
	if len(executables["b"].upstream) != 1 || executables["b"].upstream[0].Label != "out.csv" {
		t.Errorf("b should receive a's output, got %v", executables["b"].upstream)
	}
}

func TestLocalEngine_FailureStopsRun(t *testing.T) {
	executables := map[string]*fakeExecutable{
		"a": {name: "a", ok: false},
		"b": {name: "b", ok: true},
	}
	input := chainInput(map[string]bool{"a": true, "b": true})

	events := collectEvents(t, input, fakeFactory(executables))

	last := events[len(events)-1]
	if last.Type != EventDagExecFinished || last.State() != string(domain.DagStateFailed) {
		t.Errorf("expected FAILED terminal event, got %v %q", last.Type, last.State())
	}
	if executables["b"].calls != 0 {
		t.Error("b should not execute after a failed")
	}

	for _, ev := range events {
		if ev.Type == EventExecFinished && ev.ItemName() == "a" {
			if ev.State() != string(domain.ItemStateFailure) {
				t.Errorf("expected FAILURE for a, got %q", ev.State())
			}
		}
	}
}

func TestLocalEngine_SkipsUnpermittedItems(t *testing.T) {
	executables := map[string]*fakeExecutable{
		"a": {name: "a", ok: true},
		"b": {name: "b", ok: true},
	}
	input := chainInput(map[string]bool{"a": false, "b": true})

	events := collectEvents(t, input, fakeFactory(executables))

	if executables["a"].calls != 0 {
		t.Error("unpermitted item should not execute")
	}

	var skipped bool
	for _, ev := range events {
		if ev.Type == EventExecFinished && ev.ItemName() == "a" {
			skipped = ev.State() == string(domain.ItemStateSkipped)
		}
	}
	if !skipped {
		t.Error("unpermitted item should finish as SKIPPED")
	}

	last := events[len(events)-1]
	if last.State() != string(domain.DagStateCompleted) {
		t.Errorf("expected COMPLETED, got %q", last.State())
	}
}

func TestLocalEngine_JumpIterations(t *testing.T) {
	executables := map[string]*fakeExecutable{
		"a": {name: "a", ok: true},
		"b": {name: "b", ok: true},
	}
	input := chainInput(map[string]bool{"a": true, "b": true})

	jump := domain.NewJump("b", domain.PositionBottom, "a", domain.PositionBottom)
	jump.Condition = domain.JumpCondition{Type: domain.ConditionTypeIterations, MaxIterations: 3}
	input.Jumps = append(input.Jumps, jump.ToDict())

	events := collectEvents(t, input, fakeFactory(executables))

	// Три итерации цикла: каждый элемент выполняется трижды.
	if executables["a"].calls != 3 {
		t.Errorf("expected 3 executions of a, got %d", executables["a"].calls)
	}
	if executables["b"].calls != 3 {
		t.Errorf("expected 3 executions of b, got %d", executables["b"].calls)
	}

	last := events[len(events)-1]
	if last.State() != string(domain.DagStateCompleted) {
		t.Errorf("expected COMPLETED, got %q", last.State())
	}

	var flashes int
	for _, ev := range events {
		if ev.Type == EventFlash {
			flashes++
		}
	}
	if flashes != 2 {
		t.Errorf("expected 2 flash events (one per loop back), got %d", flashes)
	}
}

func TestLocalEngine_SelfJumpOnce(t *testing.T) {
	input := NewInput("/tmp/project")
	input.Items["solo"] = map[string]any{"type": "tool"}
	input.ExecutionPermits["solo"] = true

	jump := domain.NewJump("solo", domain.PositionBottom, "solo", domain.PositionBottom)
	jump.Condition = domain.JumpCondition{Type: domain.ConditionTypeIterations, MaxIterations: 2}
	input.Jumps = append(input.Jumps, jump.ToDict())

	exe := &fakeExecutable{name: "solo", ok: true}
	events := collectEvents(t, input, fakeFactory(map[string]*fakeExecutable{"solo": exe}))

	if exe.calls != 2 {
		t.Errorf("expected 2 executions, got %d", exe.calls)
	}
	last := events[len(events)-1]
	if last.State() != string(domain.DagStateCompleted) {
		t.Errorf("expected COMPLETED, got %q", last.State())
	}
}

func TestLocalEngine_ScenarioFilteredUpstream(t *testing.T) {
	executables := map[string]*fakeExecutable{
		"store": {name: "store", ok: true, out: []domain.Resource{
			domain.NewDatabaseResource("store", "sqlite:///data.db"),
		}},
		"tool": {name: "tool", ok: true},
	}

	input := NewInput("/tmp/project")
	input.Items["store"] = map[string]any{"type": "store"}
	input.Items["tool"] = map[string]any{"type": "tool"}
	input.ExecutionPermits["store"] = true
	input.ExecutionPermits["tool"] = true

	conn := domain.NewConnection("store", domain.PositionRight, "tool", domain.PositionLeft)
	conn.FilterSettings.SetFilterEnabled("sqlite:///data.db", domain.FilterTypeScenario, "low", true)
	conn.FilterSettings.SetFilterEnabled("sqlite:///data.db", domain.FilterTypeScenario, "high", true)
	input.Connections = append(input.Connections, conn.ToDict())

	collectEvents(t, input, fakeFactory(executables))

	upstream := executables["tool"].upstream
	if len(upstream) != 2 {
		t.Fatalf("expected 2 filtered copies, got %d: %v", len(upstream), upstream)
	}
	scenarios := map[string]bool{}
	for _, r := range upstream {
		if s, ok := r.Metadata["scenario"].(string); ok {
			scenarios[s] = true
		}
	}
	if !scenarios["low"] || !scenarios["high"] {
		t.Errorf("expected scenarios low and high, got %v", scenarios)
	}
}

func TestNewLocalEngine_RejectsInvalidInput(t *testing.T) {
	input := NewInput("/tmp/project")
	if _, err := NewLocalEngine(input, fakeFactory(nil), nil); err == nil {
		t.Error("expected error for input without items")
	}
}
