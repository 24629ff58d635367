package engine

import (
	"fmt"
	"sort"
)

// Edge — направленное ребро между двумя элементами по именам.
type Edge struct {
	// From — имя элемента-источника.
	From string

	// To — имя элемента-приёмника.
	To string
}

// DAG — один слабо-связный подграф элементов проекта.
//
// Граф хранится матрицами смежности, ключи — стабильные имена элементов.
// DAG "валиден", если ацикличен; граф с циклом никогда не выполняется.
// Структура не кэшируется между структурными правками: проект строит
// её заново при каждом изменении соединений.
type DAG struct {
	nodes map[string]struct{}
	succ  map[string]map[string]struct{}
	pred  map[string]map[string]struct{}
}

// NewDAG строит граф из набора имён и рёбер.
// Ребро, ссылающееся на имя вне набора, — ошибка вызывающей стороны.
func NewDAG(names []string, edges []Edge) (*DAG, error) {
	if len(names) == 0 {
		return nil, ErrEmptyDAG
	}
	d := &DAG{
		nodes: make(map[string]struct{}, len(names)),
		succ:  make(map[string]map[string]struct{}, len(names)),
		pred:  make(map[string]map[string]struct{}, len(names)),
	}
	for _, name := range names {
		d.nodes[name] = struct{}{}
	}
	for _, e := range edges {
		if _, ok := d.nodes[e.From]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, e.From)
		}
		if _, ok := d.nodes[e.To]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, e.To)
		}
		d.addEdge(e.From, e.To)
	}
	return d, nil
}

// addEdge добавляет ребро. Дубликаты схлопываются.
func (d *DAG) addEdge(from, to string) {
	if d.succ[from] == nil {
		d.succ[from] = make(map[string]struct{})
	}
	if d.pred[to] == nil {
		d.pred[to] = make(map[string]struct{})
	}
	d.succ[from][to] = struct{}{}
	d.pred[to][from] = struct{}{}
}

// NodeCount возвращает количество узлов.
func (d *DAG) NodeCount() int { return len(d.nodes) }

// ContainsNode возвращает true, если узел принадлежит графу.
func (d *DAG) ContainsNode(name string) bool {
	_, ok := d.nodes[name]
	return ok
}

// Nodes возвращает отсортированный список имён узлов.
func (d *DAG) Nodes() []string {
	out := make([]string, 0, len(d.nodes))
	for name := range d.nodes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Edges возвращает отсортированный список рёбер.
func (d *DAG) Edges() []Edge {
	var out []Edge
	for from, tos := range d.succ {
		for to := range tos {
			out = append(out, Edge{From: from, To: to})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].To < out[j].To
	})
	return out
}

// Successors возвращает отсортированные имена прямых преемников узла.
func (d *DAG) Successors(name string) []string {
	return sortedKeys(d.succ[name])
}

// Predecessors возвращает отсортированные имена прямых предшественников узла.
func (d *DAG) Predecessors(name string) []string {
	return sortedKeys(d.pred[name])
}

// Ranks выполняет топологическую сортировку по уровням (алгоритм Кана)
// и возвращает ранг каждого узла: 0 для источников, далее по уровням.
// Если граф содержит цикл, возвращает CycleError с именами вовлечённых
// элементов.
func (d *DAG) Ranks() (map[string]int, error) {
	inDegree := make(map[string]int, len(d.nodes))
	for name := range d.nodes {
		inDegree[name] = len(d.pred[name])
	}

	ranks := make(map[string]int, len(d.nodes))
	level := 0
	frontier := make([]string, 0)
	for name, deg := range inDegree {
		if deg == 0 {
			frontier = append(frontier, name)
		}
	}

	for len(frontier) > 0 {
		sort.Strings(frontier)
		var next []string
		for _, name := range frontier {
			ranks[name] = level
			for succ := range d.succ[name] {
				inDegree[succ]--
				if inDegree[succ] == 0 {
					next = append(next, succ)
				}
			}
		}
		frontier = next
		level++
	}

	if len(ranks) != len(d.nodes) {
		var cyclic []string
		for name := range d.nodes {
			if _, ok := ranks[name]; !ok {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)
		return nil, &CycleError{Nodes: cyclic}
	}
	return ranks, nil
}

// IsValid возвращает true, если граф ацикличен.
// DAG из одного узла без рёбер всегда валиден.
func (d *DAG) IsValid() bool {
	_, err := d.Ranks()
	return err == nil
}

// TopoOrder возвращает детерминированный топологический порядок узлов:
// по возрастанию ранга, внутри ранга — по имени.
func (d *DAG) TopoOrder() ([]string, error) {
	ranks, err := d.Ranks()
	if err != nil {
		return nil, err
	}
	order := d.Nodes()
	sort.SliceStable(order, func(i, j int) bool {
		return ranks[order[i]] < ranks[order[j]]
	})
	return order, nil
}

// ComponentsFor разбивает набор имён и рёбер на слабо-связные компоненты.
// Каждая компонента — отдельный DAG; изолированный узел образует
// собственную компоненту из одного узла.
func ComponentsFor(names []string, edges []Edge) []*DAG {
	// Система непересекающихся множеств по именам.
	parent := make(map[string]string, len(names))
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for _, name := range names {
		parent[name] = name
	}
	for _, e := range edges {
		if _, ok := parent[e.From]; !ok {
			continue
		}
		if _, ok := parent[e.To]; !ok {
			continue
		}
		union(e.From, e.To)
	}

	groups := make(map[string][]string)
	for _, name := range names {
		root := find(name)
		groups[root] = append(groups[root], name)
	}

	var components []*DAG
	for root, members := range groups {
		memberSet := make(map[string]struct{}, len(members))
		for _, m := range members {
			memberSet[m] = struct{}{}
		}
		var memberEdges []Edge
		for _, e := range edges {
			if _, ok := memberSet[e.From]; !ok {
				continue
			}
			if _, ok := memberSet[e.To]; !ok {
				continue
			}
			memberEdges = append(memberEdges, e)
		}
		d, err := NewDAG(members, memberEdges)
		if err != nil {
			// Внутри компоненты все концы рёбер принадлежат ей.
			panic(fmt.Sprintf("component %s: %v", root, err))
		}
		components = append(components, d)
	}

	sort.Slice(components, func(i, j int) bool {
		return components[i].Nodes()[0] < components[j].Nodes()[0]
	})
	return components
}

// SelectionComponents выделяет из графа независимые исполняемые под-DAG
// для выбранного подмножества элементов.
//
// Сначала рёбра фильтруются до касающихся выбранных узлов, затем
// отфильтрованный набор заново разбивается на слабо-связные компоненты:
// если выбор фактически охватывает несколько несвязанных ветвей,
// каждая выполняется независимо. DAG из одного узла дальше не делится.
func (d *DAG) SelectionComponents(selected map[string]bool) []*DAG {
	if d.NodeCount() == 1 {
		return []*DAG{d}
	}

	var edges []Edge
	nodeSet := make(map[string]struct{})
	for name := range selected {
		if selected[name] && d.ContainsNode(name) {
			nodeSet[name] = struct{}{}
		}
	}
	for _, e := range d.Edges() {
		if selected[e.From] || selected[e.To] {
			edges = append(edges, e)
			nodeSet[e.From] = struct{}{}
			nodeSet[e.To] = struct{}{}
		}
	}
	if len(nodeSet) == 0 {
		return nil
	}

	names := make([]string, 0, len(nodeSet))
	for name := range nodeSet {
		names = append(names, name)
	}
	sort.Strings(names)
	return ComponentsFor(names, edges)
}

// sortedKeys возвращает отсортированные ключи множества.
func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
