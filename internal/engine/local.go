package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/conveyorhq/conveyor/internal/domain"
)

// Executable — непрозрачный контракт исполняемого элемента.
//
// Ядро не знает, что именно делает элемент при выполнении; оно только
// передаёт ему ресурсы предшественников и получает результат.
type Executable interface {
	// Name возвращает имя элемента.
	Name() string

	// Execute выполняет элемент. upstream — объединённые ресурсы
	// прямых предшественников, уже пропущенные через соединения.
	// Возвращает успех и ресурсы, предоставляемые преемникам.
	Execute(ctx context.Context, upstream []domain.Resource) (bool, []domain.Resource)
}

// ExecutableFactory строит исполняемую форму элемента из его состояния.
// Фабрика вызывается только для элементов с разрешением на выполнение.
type ExecutableFactory func(name string, state map[string]any, projectDir string) (Executable, error)

// LocalEngine выполняет один DAG в текущем процессе.
//
// Жизненный цикл: New → Run (в отдельной горутине) → поток событий
// через Events до терминального dag_exec_finished. Остановка
// кооперативная: Stop только запрашивает прекращение.
type LocalEngine struct {
	input   *Input
	factory ExecutableFactory
	logger  *slog.Logger

	events chan Event
	cancel context.CancelFunc
	ctx    context.Context
}

// NewLocalEngine создаёт локальный движок для данного входа.
func NewLocalEngine(input *Input, factory ExecutableFactory, logger *slog.Logger) (*LocalEngine, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if factory == nil {
		return nil, fmt.Errorf("%w: nil executable factory", ErrEngineInit)
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalEngine{
		input:   input,
		factory: factory,
		logger:  logger,
		events:  make(chan Event, 256),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Events возвращает канал событий движка. Канал закрывается после
// терминального события.
func (e *LocalEngine) Events() <-chan Event { return e.events }

// Stop запрашивает кооперативную остановку. Возвращается сразу;
// терминальное событие USER_STOPPED придёт через поток событий.
func (e *LocalEngine) Stop() { e.cancel() }

// Run выполняет DAG и транслирует ход выполнения в события.
// Запускается в отдельной горутине; по завершении закрывает канал событий.
func (e *LocalEngine) Run() {
	defer close(e.events)

	state := e.run()
	e.emit(Event{Type: EventDagExecFinished, Data: map[string]any{
		"state": string(state),
	}})
}

// run — тело выполнения; возвращает терминальное состояние DAG.
func (e *LocalEngine) run() domain.DagState {
	names := make([]string, 0, len(e.input.Items))
	for name := range e.input.Items {
		names = append(names, name)
	}

	connections := make([]*domain.Connection, 0, len(e.input.Connections))
	edges := make([]Edge, 0, len(e.input.Connections))
	for _, d := range e.input.Connections {
		c, err := domain.ConnectionFromDict(d)
		if err != nil {
			e.errorMsg(fmt.Sprintf("Malformed connection: %v", err))
			return domain.DagStateFailed
		}
		connections = append(connections, c)
		edges = append(edges, Edge{From: c.Source, To: c.Destination})
	}

	dag, err := NewDAG(names, edges)
	if err != nil {
		e.errorMsg(fmt.Sprintf("Cannot build DAG: %v", err))
		return domain.DagStateFailed
	}
	order, err := dag.TopoOrder()
	if err != nil {
		e.errorMsg(fmt.Sprintf("Cannot execute: %v", err))
		return domain.DagStateFailed
	}

	jumps := make([]*domain.Jump, 0, len(e.input.Jumps))
	for _, d := range e.input.Jumps {
		j, err := domain.JumpFromDict(d)
		if err != nil {
			e.errorMsg(fmt.Sprintf("Malformed jump: %v", err))
			return domain.DagStateFailed
		}
		if !dag.ContainsNode(j.Source) || !dag.ContainsNode(j.Destination) {
			e.errorMsg(fmt.Sprintf("Jump endpoint outside DAG: %s", j.Name()))
			return domain.DagStateFailed
		}
		jumps = append(jumps, j)
	}

	// Исполняемая форма строится только для разрешённых элементов.
	executables := make(map[string]Executable, len(order))
	for _, name := range order {
		if !e.input.ExecutionPermits[name] {
			continue
		}
		exe, err := e.factory(name, e.input.Items[name], e.input.ProjectDir)
		if err != nil {
			e.errorMsg(fmt.Sprintf("Cannot make executable for %s: %v", name, err))
			return domain.DagStateFailed
		}
		executables[name] = exe
	}

	return e.executeOrder(dag, order, connections, jumps, executables)
}

// executeOrder проходит топологический порядок, обрабатывая переходы.
func (e *LocalEngine) executeOrder(
	dag *DAG,
	order []string,
	connections []*domain.Connection,
	jumps []*domain.Jump,
	executables map[string]Executable,
) domain.DagState {
	// Выход каждого элемента за текущий проход.
	outputs := make(map[string][]domain.Resource, len(order))
	iterations := make(map[string]int, len(jumps))

	for i := 0; i < len(order); i++ {
		name := order[i]

		select {
		case <-e.ctx.Done():
			return domain.DagStateUserStopped
		default:
		}

		if !e.input.ExecutionPermits[name] {
			e.emit(Event{Type: EventExecFinished, Data: map[string]any{
				"item_name": name,
				"direction": "FORWARD",
				"state":     string(domain.ItemStateSkipped),
			}})
			continue
		}

		e.emit(Event{Type: EventExecStarted, Data: map[string]any{
			"item_name": name,
			"direction": "FORWARD",
		}})

		upstream := e.upstreamResources(dag, name, connections, outputs)
		ok, out := executables[name].Execute(e.ctx, upstream)
		outputs[name] = out

		if e.ctx.Err() != nil {
			e.emit(Event{Type: EventExecFinished, Data: map[string]any{
				"item_name": name,
				"direction": "FORWARD",
				"state":     string(domain.ItemStateStopped),
			}})
			return domain.DagStateUserStopped
		}

		itemState := domain.ItemStateSuccess
		if !ok {
			itemState = domain.ItemStateFailure
		}
		e.emit(Event{Type: EventExecFinished, Data: map[string]any{
			"item_name": name,
			"direction": "FORWARD",
			"state":     string(itemState),
		}})
		if !ok {
			return domain.DagStateFailed
		}

		// Обратное ребро: если условие цикла держится, возвращаемся
		// к приёмнику перехода.
		for _, j := range jumps {
			if j.Source != name {
				continue
			}
			iter := iterations[j.Name()]
			if !j.Condition.Holds(iter) {
				continue
			}
			iterations[j.Name()] = iter + 1
			e.emit(Event{Type: EventFlash, Data: map[string]any{
				"item_name": j.Destination,
			}})
			e.emit(Event{Type: EventMsg, Data: map[string]any{
				"item_name": j.Source,
				"msg_type":  "msg",
				"msg_text":  fmt.Sprintf("Looping back to %s (iteration %d)", j.Destination, iter+2),
			}})
			dest, ok := indexOf(order, j.Destination)
			if !ok {
				e.errorMsg(fmt.Sprintf("Jump destination %s not in execution order", j.Destination))
				return domain.DagStateFailed
			}
			i = dest - 1
			break
		}
	}

	return domain.DagStateCompleted
}

// upstreamResources собирает объединённые ресурсы предшественников
// элемента, пропуская каждый список через его соединение.
func (e *LocalEngine) upstreamResources(
	dag *DAG,
	name string,
	connections []*domain.Connection,
	outputs map[string][]domain.Resource,
) []domain.Resource {
	var lists [][]domain.Resource
	for _, pred := range dag.Predecessors(name) {
		out, ok := outputs[pred]
		if !ok {
			continue
		}
		for _, c := range connections {
			if c.Source == pred && c.Destination == name {
				out = c.ConvertResources(out)
				break
			}
		}
		lists = append(lists, out)
	}
	return domain.MergeResources(lists...)
}

// errorMsg отправляет сообщение об ошибке в поток событий.
func (e *LocalEngine) errorMsg(text string) {
	e.logger.Error(text)
	e.emit(Event{Type: EventMsg, Data: map[string]any{
		"msg_type": "msg_error",
		"msg_text": text,
	}})
}

// emit кладёт событие в канал. Потребитель обязан читать поток
// до закрытия канала, поэтому блокирующая отправка безопасна.
func (e *LocalEngine) emit(ev Event) {
	e.events <- ev
}

// indexOf возвращает позицию имени в порядке выполнения.
func indexOf(order []string, name string) (int, bool) {
	for i, n := range order {
		if n == name {
			return i, true
		}
	}
	return 0, false
}
