package engine

import (
	"errors"
	"reflect"
	"testing"
)

func TestNewDAG_Empty(t *testing.T) {
	_, err := NewDAG(nil, nil)
	if !errors.Is(err, ErrEmptyDAG) {
		t.Errorf("expected ErrEmptyDAG, got %v", err)
	}
}

func TestNewDAG_UnknownNode(t *testing.T) {
	_, err := NewDAG([]string{"a"}, []Edge{{From: "a", To: "b"}})
	if !errors.Is(err, ErrUnknownNode) {
		t.Errorf("expected ErrUnknownNode, got %v", err)
	}
}

func TestDAG_Ranks(t *testing.T) {
	// a → b → d, a → c → d
	d, err := NewDAG(
		[]string{"a", "b", "c", "d"},
		[]Edge{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ranks, err := d.Ranks()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := map[string]int{"a": 0, "b": 1, "c": 1, "d": 2}
	if !reflect.DeepEqual(ranks, expected) {
		t.Errorf("expected ranks %v, got %v", expected, ranks)
	}
}

func TestDAG_Ranks_SingleNode(t *testing.T) {
	d, _ := NewDAG([]string{"solo"}, nil)
	ranks, err := d.Ranks()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ranks["solo"] != 0 {
		t.Errorf("expected rank 0 for a source, got %d", ranks["solo"])
	}
	if !d.IsValid() {
		t.Error("single-node DAG should be valid")
	}
}

func TestDAG_Ranks_Cycle(t *testing.T) {
	d, _ := NewDAG(
		[]string{"a", "b", "c", "d"},
		[]Edge{{"a", "b"}, {"b", "c"}, {"c", "b"}, {"c", "d"}},
	)

	_, err := d.Ranks()
	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleError, got %v", err)
	}

	// Участники цикла и всё, что за ним, остаются без ранга.
	expected := []string{"b", "c", "d"}
	if !reflect.DeepEqual(cycleErr.Nodes, expected) {
		t.Errorf("expected cyclic nodes %v, got %v", expected, cycleErr.Nodes)
	}
	if d.IsValid() {
		t.Error("cyclic DAG should not be valid")
	}
}

func TestDAG_TopoOrder(t *testing.T) {
	d, _ := NewDAG(
		[]string{"a", "b", "c", "d"},
		[]Edge{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}},
	)
	order, err := d.TopoOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := []string{"a", "b", "c", "d"}
	if !reflect.DeepEqual(order, expected) {
		t.Errorf("expected order %v, got %v", expected, order)
	}
}

func TestComponentsFor(t *testing.T) {
	components := ComponentsFor(
		[]string{"a", "b", "c", "d", "e"},
		[]Edge{{"a", "b"}, {"c", "d"}},
	)
	if len(components) != 3 {
		t.Fatalf("expected 3 components, got %d", len(components))
	}

	var sizes []int
	for _, c := range components {
		sizes = append(sizes, c.NodeCount())
	}
	if !reflect.DeepEqual(sizes, []int{2, 2, 1}) {
		t.Errorf("expected component sizes [2 2 1], got %v", sizes)
	}

	// Изолированный узел — собственная компонента.
	last := components[2]
	if !last.ContainsNode("e") {
		t.Error("isolated node e should form its own component")
	}
}

func TestSelectionComponents_SplitsBranches(t *testing.T) {
	// a → b → c и a → d → e; выбор {c, e} не связан между собой
	// и должен разбиться на две независимые компоненты.
	d, _ := NewDAG(
		[]string{"a", "b", "c", "d", "e"},
		[]Edge{{"a", "b"}, {"b", "c"}, {"a", "d"}, {"d", "e"}},
	)

	components := d.SelectionComponents(map[string]bool{"c": true, "e": true})
	if len(components) != 2 {
		t.Fatalf("expected 2 components, got %d", len(components))
	}

	first, second := components[0], components[1]
	if !first.ContainsNode("b") || !first.ContainsNode("c") {
		t.Errorf("first component should be {b c}, got %v", first.Nodes())
	}
	if !second.ContainsNode("d") || !second.ContainsNode("e") {
		t.Errorf("second component should be {d e}, got %v", second.Nodes())
	}
	if first.ContainsNode("a") || second.ContainsNode("a") {
		t.Error("a touches the selection edges only through b and d, not directly")
	}
}

func TestSelectionComponents_NeighboursIncluded(t *testing.T) {
	d, _ := NewDAG(
		[]string{"a", "b", "c"},
		[]Edge{{"a", "b"}, {"b", "c"}},
	)

	components := d.SelectionComponents(map[string]bool{"b": true})
	if len(components) != 1 {
		t.Fatalf("expected 1 component, got %d", len(components))
	}
	// Соседи выбранного узла входят в под-DAG как контекст.
	nodes := components[0].Nodes()
	if !reflect.DeepEqual(nodes, []string{"a", "b", "c"}) {
		t.Errorf("expected nodes [a b c], got %v", nodes)
	}
}

func TestSelectionComponents_SingleNodeDAG(t *testing.T) {
	d, _ := NewDAG([]string{"solo"}, nil)
	components := d.SelectionComponents(map[string]bool{"solo": true})
	if len(components) != 1 || components[0] != d {
		t.Error("single-node DAG should be returned as is")
	}
}

func TestSelectionComponents_EmptySelection(t *testing.T) {
	d, _ := NewDAG([]string{"a", "b"}, []Edge{{"a", "b"}})
	if got := d.SelectionComponents(map[string]bool{"x": true}); got != nil {
		t.Errorf("expected no components, got %v", got)
	}
}
