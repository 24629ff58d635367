package project

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/conveyorhq/conveyor/internal/console"
	"github.com/conveyorhq/conveyor/internal/domain"
	"github.com/conveyorhq/conveyor/internal/engine"
	"github.com/conveyorhq/conveyor/internal/execution"
)

// Project — фасад проекта: элементы, соединения, переходы и выполнение.
//
// Структурные инварианты, поддерживаемые фасадом:
//   - имена элементов уникальны и проходят валидацию
//   - между упорядоченной парой элементов не более одного соединения
//   - каждый слабо-связный подграф ацикличен; правка, создающая цикл,
//     откатывается
//   - переходы связывают элементы одного DAG назад по рангу и
//     не пересекаются друг с другом
type Project struct {
	mu sync.Mutex

	name     string
	dir      string
	settings map[string]any

	execSettings execution.Settings
	jobID        string

	factory  engine.ExecutableFactory
	consoles *console.Registry
	logger   *slog.Logger

	items       map[string]domain.ProjectItem
	connections []*domain.Connection
	jumps       []*domain.Jump
	specs       map[string][]map[string]any

	// ranks — ранг каждого элемента внутри его DAG; -1 у элементов
	// невалидных (циклических) подграфов.
	ranks map[string]int

	run *projectRun
}

// Option — опция конструктора проекта.
type Option func(*Project)

// WithExecutableFactory задаёт фабрику исполняемых элементов
// для локального выполнения.
func WithExecutableFactory(f engine.ExecutableFactory) Option {
	return func(p *Project) { p.factory = f }
}

// WithExecutionSettings задаёт настройки движка выполнения.
func WithExecutionSettings(s execution.Settings) Option {
	return func(p *Project) { p.execSettings = s }
}

// WithConsoles задаёт реестр постоянных консолей.
func WithConsoles(r *console.Registry) Option {
	return func(p *Project) { p.consoles = r }
}

// WithLogger задаёт логгер проекта.
func WithLogger(l *slog.Logger) Option {
	return func(p *Project) { p.logger = l }
}

// New создаёт пустой проект в каталоге dir.
func New(name, dir string, opts ...Option) *Project {
	p := &Project{
		name:     name,
		dir:      dir,
		settings: make(map[string]any),
		items:    make(map[string]domain.ProjectItem),
		specs:    make(map[string][]map[string]any),
		ranks:    make(map[string]int),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.consoles == nil {
		p.consoles = console.NewRegistry(p.logger)
	}
	return p
}

// Name возвращает имя проекта.
func (p *Project) Name() string { return p.name }

// Dir возвращает каталог проекта.
func (p *Project) Dir() string { return p.dir }

// JobID возвращает идентификатор удалённого задания проекта.
// Пустая строка — проект ещё не загружался на сервер.
func (p *Project) JobID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobID
}

// SetJobID запоминает идентификатор удалённого задания.
func (p *Project) SetJobID(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.jobID = id
}

// ValidateItemName проверяет имя элемента: непустое после обрезки
// пробелов, без переводов строки, без ведущих и хвостовых пробелов.
func ValidateItemName(name string) error {
	if name == "" || strings.TrimSpace(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if strings.ContainsAny(name, "\n\r\t") {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// AddItem добавляет элемент в проект.
func (p *Project) AddItem(item domain.ProjectItem) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := ValidateItemName(item.Name()); err != nil {
		return err
	}
	if _, ok := p.items[item.Name()]; ok {
		return fmt.Errorf("%w: %q", ErrItemExists, item.Name())
	}
	p.items[item.Name()] = item
	p.refreshRanksLocked()
	p.propagateLocked()
	return nil
}

// Item возвращает элемент по имени.
func (p *Project) Item(name string) (domain.ProjectItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.items[name]
	return item, ok
}

// ItemNames возвращает отсортированные имена элементов.
func (p *Project) ItemNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.itemNamesLocked()
}

func (p *Project) itemNamesLocked() []string {
	out := make([]string, 0, len(p.items))
	for name := range p.items {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// RemoveItemByName удаляет элемент вместе с его соединениями
// и переходами.
func (p *Project) RemoveItemByName(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.items[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownItem, name)
	}
	delete(p.items, name)
	delete(p.ranks, name)

	kept := p.connections[:0]
	for _, c := range p.connections {
		if !c.HasEndpoint(name) {
			kept = append(kept, c)
		}
	}
	p.connections = kept

	keptJumps := p.jumps[:0]
	for _, j := range p.jumps {
		if !j.HasEndpoint(name) {
			keptJumps = append(keptJumps, j)
		}
	}
	p.jumps = keptJumps

	p.refreshRanksLocked()
	p.pruneInvalidJumpsLocked()
	p.propagateLocked()
	return nil
}

// RenameItem переименовывает элемент.
//
// Соседям переименованного элемента ссылки на его ресурсы доставляются
// диффовым обновлением: по одному уведомлению на соседа, с парами
// (старый ресурс, новый ресурс). Состояние соседей при этом не
// пересобирается.
func (p *Project) RenameItem(oldName, newName string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	item, ok := p.items[oldName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownItem, oldName)
	}
	if newName == oldName {
		return nil
	}
	if err := ValidateItemName(newName); err != nil {
		return err
	}
	if _, ok := p.items[newName]; ok {
		return fmt.Errorf("%w: %q", ErrItemExists, newName)
	}

	oldForward := item.ResourcesForDirectSuccessors()
	oldBackward := item.ResourcesForDirectPredecessors()

	delete(p.items, oldName)
	item.SetName(newName)
	p.items[newName] = item
	if rank, ok := p.ranks[oldName]; ok {
		delete(p.ranks, oldName)
		p.ranks[newName] = rank
	}
	for _, c := range p.connections {
		c.RenameEndpoint(oldName, newName)
	}
	for _, j := range p.jumps {
		j.RenameEndpoint(oldName, newName)
	}

	newForward := item.ResourcesForDirectSuccessors()
	newBackward := item.ResourcesForDirectPredecessors()

	for _, c := range p.connections {
		if c.Source == newName {
			if dst, ok := p.items[c.Destination]; ok {
				dst.ReplaceResourcesFromUpstream(
					c.ConvertResources(oldForward),
					c.ConvertResources(newForward),
				)
			}
		}
		if c.Destination == newName {
			if src, ok := p.items[c.Source]; ok {
				src.ReplaceResourcesFromDownstream(oldBackward, newBackward)
			}
		}
	}
	return nil
}

// AddConnection добавляет соединение в проект.
//
// Соединение, замыкающее цикл, откатывается: проект возвращается
// в состояние до вызова, вызывающая сторона получает *engine.CycleError
// и может предложить пользователю переход вместо соединения.
func (p *Project) AddConnection(c *domain.Connection) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c.Source == c.Destination {
		return fmt.Errorf("%w: %q", ErrSelfConnection, c.Source)
	}
	if _, ok := p.items[c.Source]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownItem, c.Source)
	}
	if _, ok := p.items[c.Destination]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownItem, c.Destination)
	}
	for _, existing := range p.connections {
		if existing.Key() == c.Key() {
			return fmt.Errorf("%w: %s", ErrConnectionExists, c.Name())
		}
	}

	p.connections = append(p.connections, c)
	if err := p.validateDagsLocked(); err != nil {
		p.connections = p.connections[:len(p.connections)-1]
		return err
	}

	p.refreshRanksLocked()
	p.pruneInvalidJumpsLocked()
	p.propagateLocked()
	return nil
}

// Connection возвращает соединение по паре (источник, приёмник).
func (p *Project) Connection(source, destination string) (*domain.Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.findConnectionLocked(source, destination)
}

func (p *Project) findConnectionLocked(source, destination string) (*domain.Connection, bool) {
	for _, c := range p.connections {
		if c.Source == source && c.Destination == destination {
			return c, true
		}
	}
	return nil, false
}

// Connections возвращает копию списка соединений.
func (p *Project) Connections() []*domain.Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*domain.Connection, len(p.connections))
	copy(out, p.connections)
	return out
}

// UpdateConnection заменяет опции и настройки фильтрации существующего
// соединения и заново распространяет ресурсы.
func (p *Project) UpdateConnection(c *domain.Connection) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, ok := p.findConnectionLocked(c.Source, c.Destination)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConnection, c.Name())
	}
	existing.Options = c.Options
	existing.FilterSettings = c.FilterSettings
	p.propagateLocked()
	return nil
}

// RemoveConnection удаляет соединение. Переходы, потерявшие после
// удаления свой DAG, удаляются с предупреждением в журнале.
func (p *Project) RemoveConnection(source, destination string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx := -1
	for i, c := range p.connections {
		if c.Source == source && c.Destination == destination {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: from %s to %s", ErrUnknownConnection, source, destination)
	}
	p.connections = append(p.connections[:idx], p.connections[idx+1:]...)

	p.refreshRanksLocked()
	p.pruneInvalidJumpsLocked()
	p.propagateLocked()
	return nil
}

// AddJump добавляет переход в проект.
//
// Инварианты перехода: оба конца принадлежат одному DAG, источник
// не раньше приёмника по рангу, диапазон рангов перехода не
// пересекается с другими переходами того же DAG.
func (p *Project) AddJump(j *domain.Jump) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.validateJumpLocked(j, nil); err != nil {
		return err
	}
	p.jumps = append(p.jumps, j)
	return nil
}

// Jump возвращает переход по паре (источник, приёмник).
func (p *Project) Jump(source, destination string) (*domain.Jump, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, j := range p.jumps {
		if j.Source == source && j.Destination == destination {
			return j, true
		}
	}
	return nil, false
}

// Jumps возвращает копию списка переходов.
func (p *Project) Jumps() []*domain.Jump {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*domain.Jump, len(p.jumps))
	copy(out, p.jumps)
	return out
}

// UpdateJump заменяет условие существующего перехода.
func (p *Project) UpdateJump(source, destination string, condition domain.JumpCondition) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, j := range p.jumps {
		if j.Source == source && j.Destination == destination {
			j.Condition = condition
			return nil
		}
	}
	return fmt.Errorf("%w: jump from %s to %s", ErrUnknownJump, source, destination)
}

// RemoveJump удаляет переход.
func (p *Project) RemoveJump(source, destination string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, j := range p.jumps {
		if j.Source == source && j.Destination == destination {
			p.jumps = append(p.jumps[:i], p.jumps[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: jump from %s to %s", ErrUnknownJump, source, destination)
}

// validateJumpLocked проверяет инварианты перехода. skip — переход,
// исключаемый из проверки пересечений (при обновлении самого себя).
func (p *Project) validateJumpLocked(j *domain.Jump, skip *domain.Jump) error {
	if _, ok := p.items[j.Source]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownItem, j.Source)
	}
	if _, ok := p.items[j.Destination]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownItem, j.Destination)
	}

	dag := p.dagWithNodeLocked(j.Source)
	if dag == nil || !dag.ContainsNode(j.Destination) {
		return fmt.Errorf("%w: %s and %s belong to different DAGs",
			ErrInvalidJump, j.Source, j.Destination)
	}
	ranks, err := dag.Ranks()
	if err != nil {
		return fmt.Errorf("%w: containing DAG is not valid", ErrInvalidJump)
	}
	lo, hi := ranks[j.Destination], ranks[j.Source]
	if lo > hi {
		return fmt.Errorf("%w: jump from %s to %s goes forward",
			ErrInvalidJump, j.Source, j.Destination)
	}
	for _, other := range p.jumps {
		if other == skip || other == j {
			continue
		}
		if !dag.ContainsNode(other.Source) {
			continue
		}
		oLo, oHi := ranks[other.Destination], ranks[other.Source]
		if lo <= oHi && oLo <= hi {
			return fmt.Errorf("%w: overlaps with %s", ErrInvalidJump, other.Name())
		}
	}
	return nil
}

// pruneInvalidJumpsLocked удаляет переходы, ставшие невалидными после
// структурной правки.
func (p *Project) pruneInvalidJumpsLocked() {
	kept := p.jumps[:0]
	for _, j := range p.jumps {
		if err := p.validateJumpLocked(j, j); err != nil {
			p.logger.Warn("removing jump invalidated by a structural change",
				"jump", j.Name(), "reason", err)
			continue
		}
		kept = append(kept, j)
	}
	p.jumps = kept
}

// edgesLocked возвращает рёбра всех соединений проекта.
func (p *Project) edgesLocked() []engine.Edge {
	edges := make([]engine.Edge, 0, len(p.connections))
	for _, c := range p.connections {
		edges = append(edges, engine.Edge{From: c.Source, To: c.Destination})
	}
	return edges
}

// DAGs возвращает слабо-связные подграфы проекта.
func (p *Project) DAGs() []*engine.DAG {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dagsLocked()
}

func (p *Project) dagsLocked() []*engine.DAG {
	if len(p.items) == 0 {
		return nil
	}
	return engine.ComponentsFor(p.itemNamesLocked(), p.edgesLocked())
}

// DAGWithNode возвращает DAG, содержащий элемент, или nil.
func (p *Project) DAGWithNode(name string) *engine.DAG {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dagWithNodeLocked(name)
}

func (p *Project) dagWithNodeLocked(name string) *engine.DAG {
	for _, d := range p.dagsLocked() {
		if d.ContainsNode(name) {
			return d
		}
	}
	return nil
}

// validateDagsLocked возвращает первую ошибку цикличности среди
// подграфов проекта.
func (p *Project) validateDagsLocked() error {
	for _, d := range p.dagsLocked() {
		if _, err := d.Ranks(); err != nil {
			return err
		}
	}
	return nil
}

// Rank возвращает ранг элемента в его DAG; -1, если элемент входит
// в невалидный подграф.
func (p *Project) Rank(name string) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rank, ok := p.ranks[name]
	return rank, ok
}

// refreshRanksLocked пересчитывает ранги всех элементов.
func (p *Project) refreshRanksLocked() {
	p.ranks = make(map[string]int, len(p.items))
	for _, d := range p.dagsLocked() {
		ranks, err := d.Ranks()
		if err != nil {
			for _, name := range d.Nodes() {
				p.ranks[name] = -1
			}
			continue
		}
		for name, rank := range ranks {
			p.ranks[name] = rank
		}
	}
}

// Settings возвращает настройки приложения, видимые элементам.
func (p *Project) Settings() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settings
}

// SetSetting записывает настройку приложения.
func (p *Project) SetSetting(key string, value any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settings[key] = value
}

// AddSpecification регистрирует спецификацию для типа элементов.
func (p *Project) AddSpecification(itemType string, spec map[string]any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.specs[itemType] = append(p.specs[itemType], spec)
}

// Consoles возвращает реестр постоянных консолей проекта.
func (p *Project) Consoles() *console.Registry { return p.consoles }
