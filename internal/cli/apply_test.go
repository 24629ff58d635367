package cli

import (
	"errors"
	"reflect"
	"testing"

	"github.com/conveyorhq/conveyor/internal/domain"
	"github.com/conveyorhq/conveyor/internal/project"
)

func TestSplitScriptLine(t *testing.T) {
	cases := []struct {
		line string
		want []string
	}{
		{"add-item store data_store", []string{"add-item", "store", "data_store"}},
		{`rename-item "old name" "new name"`, []string{"rename-item", "old name", "new name"}},
		{`connect "a" b`, []string{"connect", "a", "b"}},
		{"  spaced   out  ", []string{"spaced", "out"}},
		{`add-item "" tool`, []string{"add-item", "", "tool"}},
		{"", nil},
	}
	for _, tc := range cases {
		got, err := splitScriptLine(tc.line)
		if err != nil {
			t.Errorf("splitScriptLine(%q): %v", tc.line, err)
			continue
		}
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitScriptLine(%q) = %v, want %v", tc.line, got, tc.want)
		}
	}
}

func TestSplitScriptLine_UnterminatedQuote(t *testing.T) {
	if _, err := splitScriptLine(`add-item "broken`); err == nil {
		t.Error("expected error for unterminated quote")
	}
}

func TestApplyLine_Commands(t *testing.T) {
	p := project.New("demo", t.TempDir())

	script := []string{
		"add-item reader importer",
		"add-item writer tool",
		`add-item "data store" data_store`,
		"connect reader writer",
		`connect writer "data store"`,
		"add-jump writer reader iterations 3",
		`rename-item "data store" vault`,
	}
	for _, line := range script {
		if err := applyLine(p, line); err != nil {
			t.Fatalf("applyLine(%q): %v", line, err)
		}
	}

	want := []string{"reader", "vault", "writer"}
	if !reflect.DeepEqual(p.ItemNames(), want) {
		t.Errorf("unexpected items %v", p.ItemNames())
	}
	if _, ok := p.Connection("writer", "vault"); !ok {
		t.Error("connection endpoint should follow the rename")
	}
	j, ok := p.Jump("writer", "reader")
	if !ok {
		t.Fatal("jump should be added")
	}
	if j.Condition.Type != domain.ConditionTypeIterations || j.Condition.MaxIterations != 3 {
		t.Errorf("unexpected jump condition %+v", j.Condition)
	}

	// Обратные правки.
	for _, line := range []string{
		"remove-jump writer reader",
		"disconnect writer vault",
		"remove-item vault",
	} {
		if err := applyLine(p, line); err != nil {
			t.Fatalf("applyLine(%q): %v", line, err)
		}
	}
	if len(p.Connections()) != 1 || len(p.Jumps()) != 0 {
		t.Errorf("unexpected project after removals: %d connections, %d jumps",
			len(p.Connections()), len(p.Jumps()))
	}
}

func TestApplyLine_Filters(t *testing.T) {
	p := project.New("demo", t.TempDir())
	for _, line := range []string{
		"add-item store data_store",
		"add-item tool tool",
		"connect store tool",
		"enable-filter store tool db low",
		"enable-filter store tool db high",
		"disable-filter store tool db low",
	} {
		if err := applyLine(p, line); err != nil {
			t.Fatalf("applyLine(%q): %v", line, err)
		}
	}

	c, _ := p.Connection("store", "tool")
	enabled := c.FilterSettings.EnabledFilterValues("db", domain.FilterTypeScenario)
	if !reflect.DeepEqual(enabled, []string{"high"}) {
		t.Errorf("expected enabled [high], got %v", enabled)
	}
}

func TestApplyLine_ArgumentErrors(t *testing.T) {
	p := project.New("demo", t.TempDir())

	bad := []string{
		"frobnicate a b",
		"add-item onlyname",
		"connect a",
		"add-jump a b sometimes",
		"add-jump a b iterations zero",
		"add-jump a b iterations 0",
	}
	for _, line := range bad {
		err := applyLine(p, line)
		var argErr *ArgumentError
		if !errors.As(err, &argErr) {
			t.Errorf("applyLine(%q) = %v, want *ArgumentError", line, err)
		}
	}
}

func TestApplyLine_StructuralErrorsAreNotArgumentErrors(t *testing.T) {
	p := project.New("demo", t.TempDir())
	if err := applyLine(p, "add-item a tool"); err != nil {
		t.Fatal(err)
	}

	// Структурно невозможная правка — обычная ошибка, не ошибка аргументов.
	err := applyLine(p, "connect a ghost")
	if err == nil {
		t.Fatal("expected error for unknown item")
	}
	var argErr *ArgumentError
	if errors.As(err, &argErr) {
		t.Errorf("structural error should not be an argument error: %v", err)
	}
	if !errors.Is(err, project.ErrUnknownItem) {
		t.Errorf("expected ErrUnknownItem, got %v", err)
	}
}

func TestParseJumpCondition(t *testing.T) {
	cond, err := parseJumpCondition([]string{"once"})
	if err != nil || cond.Type != domain.ConditionTypeOnce {
		t.Errorf("unexpected once condition %+v / %v", cond, err)
	}
	cond, err = parseJumpCondition([]string{"iterations", "5"})
	if err != nil || cond.MaxIterations != 5 {
		t.Errorf("unexpected iterations condition %+v / %v", cond, err)
	}
	if _, err := parseJumpCondition([]string{"iterations"}); err == nil {
		t.Error("expected error for missing count")
	}
}
