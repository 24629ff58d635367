package project

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/conveyorhq/conveyor/internal/domain"
	"github.com/conveyorhq/conveyor/internal/engine"
	"github.com/conveyorhq/conveyor/internal/execution"
	"github.com/conveyorhq/conveyor/internal/telemetry"
)

// RunOptions — параметры запуска выполнения проекта.
type RunOptions struct {
	// Hooks — обработчики событий каждого воркера.
	Hooks execution.Hooks

	// OnProjectFinished — вызывается один раз после завершения всех
	// DAG с итоговым состоянием проекта.
	OnProjectFinished func(state domain.DagState)
}

// projectRun — состояние одного выполнения проекта.
type projectRun struct {
	workers  []*execution.Worker
	managers []execution.Manager
	group    *errgroup.Group

	mu     sync.Mutex
	states []domain.DagState
}

// Execute запускает выполнение всех валидных DAG проекта.
// Каждый DAG получает собственный воркер; воркеры работают параллельно.
// Невалидный (циклический) подграф пропускается с предупреждением
// в журнале и не мешает остальным. Возвращается сразу после запуска;
// завершение — через Wait или OnProjectFinished.
func (p *Project) Execute(opts RunOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.run != nil {
		return ErrAlreadyRunning
	}

	var targets []dagTarget
	for _, d := range p.dagsLocked() {
		if _, err := d.Ranks(); err != nil {
			p.logger.Warn("skipping invalid DAG", "error", err)
			continue
		}
		permits := make(map[string]bool, d.NodeCount())
		for _, name := range d.Nodes() {
			permits[name] = true
		}
		targets = append(targets, dagTarget{dag: d, permits: permits})
	}
	if len(targets) == 0 {
		return ErrNothingToExecute
	}
	return p.startRunLocked(targets, opts)
}

// ExecuteSelected запускает выполнение подмножества элементов.
//
// Неизвестные имена не срывают запуск: они возвращаются списком
// предупреждений. Выбор разбивается на независимые исполняемые
// под-DAG; невыбранные элементы, попавшие в под-DAG как соседи,
// присутствуют во входе движка без разрешения на выполнение.
func (p *Project) ExecuteSelected(names []string, opts RunOptions) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.run != nil {
		return nil, ErrAlreadyRunning
	}

	selected := make(map[string]bool, len(names))
	var unknown []string
	for _, name := range names {
		if _, ok := p.items[name]; ok {
			selected[name] = true
		} else {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		p.logger.Warn("selected item not found in project", "item", name)
	}
	if len(selected) == 0 {
		return unknown, ErrNothingToExecute
	}

	var targets []dagTarget
	for _, d := range p.dagsLocked() {
		touches := false
		for name := range selected {
			if d.ContainsNode(name) {
				touches = true
				break
			}
		}
		if !touches {
			continue
		}
		if _, err := d.Ranks(); err != nil {
			p.logger.Warn("skipping invalid DAG", "error", err)
			continue
		}
		for _, sub := range d.SelectionComponents(selected) {
			permits := make(map[string]bool, sub.NodeCount())
			for _, name := range sub.Nodes() {
				permits[name] = selected[name]
			}
			targets = append(targets, dagTarget{dag: sub, permits: permits})
		}
	}
	if len(targets) == 0 {
		return unknown, ErrNothingToExecute
	}
	return unknown, p.startRunLocked(targets, opts)
}

// dagTarget — один исполняемый DAG с разрешениями на выполнение.
type dagTarget struct {
	dag     *engine.DAG
	permits map[string]bool
}

// startRunLocked строит входы движка, создаёт менеджеры и воркеры
// и запускает выполнение.
func (p *Project) startRunLocked(targets []dagTarget, opts RunOptions) error {
	run := &projectRun{group: new(errgroup.Group)}

	for i, t := range targets {
		input, err := p.buildInputLocked(t.dag, t.permits)
		if err != nil {
			return err
		}
		logger := telemetry.WithDag(p.logger, fmt.Sprintf("dag-%d", i))
		mgr := execution.NewManager(p.execSettings, p.jobID, p.factory, p.consoles, logger)
		worker := execution.NewWorker(input, mgr, opts.Hooks, logger)
		run.workers = append(run.workers, worker)
		run.managers = append(run.managers, mgr)
	}

	p.run = run
	for i := range run.workers {
		w := run.workers[i]
		run.group.Go(func() error {
			state := w.Wait()
			run.mu.Lock()
			run.states = append(run.states, state)
			run.mu.Unlock()
			return nil
		})
	}
	for _, w := range run.workers {
		w.Start()
	}

	go p.finishRun(run, opts.OnProjectFinished)
	return nil
}

// finishRun дожидается всех воркеров, освобождает менеджеры,
// фиксирует итог и уведомляет о завершении проекта.
func (p *Project) finishRun(run *projectRun, onFinished func(domain.DagState)) {
	_ = run.group.Wait()

	state := overallState(run.states)

	p.mu.Lock()
	for _, mgr := range run.managers {
		// Удалённый менеджер знает id задания после первой загрузки
		// проекта; запоминаем его для последующих запусков.
		if rm, ok := mgr.(*execution.RemoteManager); ok {
			if id := rm.JobID(); id != "" && id != execution.LocalJobID {
				p.jobID = id
			}
		}
		mgr.Close()
	}
	p.run = nil
	p.mu.Unlock()

	p.logger.Info("project execution finished", "state", string(state))
	if onFinished != nil {
		onFinished(state)
	}
}

// overallState сводит состояния всех DAG в итог проекта:
// любой отказ — FAILED, иначе любая остановка — USER_STOPPED,
// иначе COMPLETED.
func overallState(states []domain.DagState) domain.DagState {
	overall := domain.DagStateCompleted
	for _, s := range states {
		switch s {
		case domain.DagStateFailed:
			return domain.DagStateFailed
		case domain.DagStateUserStopped:
			overall = domain.DagStateUserStopped
		}
	}
	return overall
}

// Stop запрашивает остановку текущего выполнения. Без выполнения — no-op.
func (p *Project) Stop() {
	p.mu.Lock()
	run := p.run
	p.mu.Unlock()
	if run == nil {
		return
	}
	for _, w := range run.workers {
		w.Stop()
	}
}

// Wait блокируется до завершения текущего выполнения и возвращает
// итоговое состояние. Без выполнения возвращает COMPLETED.
func (p *Project) Wait() domain.DagState {
	p.mu.Lock()
	run := p.run
	p.mu.Unlock()
	if run == nil {
		return domain.DagStateCompleted
	}
	_ = run.group.Wait()
	run.mu.Lock()
	defer run.mu.Unlock()
	return overallState(run.states)
}

// IsRunning возвращает true, если проект сейчас выполняется.
func (p *Project) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run != nil
}

// buildInputLocked собирает вход движка для одного DAG.
func (p *Project) buildInputLocked(d *engine.DAG, permits map[string]bool) (*engine.Input, error) {
	input := engine.NewInput(p.dir)

	types := make(map[string]struct{})
	for _, name := range d.Nodes() {
		item := p.items[name]
		input.Items[name] = item.StateDict()
		input.ExecutionPermits[name] = permits[name]
		types[item.Type()] = struct{}{}
	}
	for typ := range types {
		if specs, ok := p.specs[typ]; ok {
			input.Specifications[typ] = specs
		}
	}
	for _, c := range p.connections {
		if d.ContainsNode(c.Source) && d.ContainsNode(c.Destination) {
			input.Connections = append(input.Connections, c.ToDict())
		}
	}
	for _, j := range p.jumps {
		if d.ContainsNode(j.Source) && d.ContainsNode(j.Destination) {
			input.Jumps = append(input.Jumps, j.ToDict())
		}
	}
	for k, v := range p.settings {
		input.Settings[k] = v
	}

	if err := input.Validate(); err != nil {
		return nil, err
	}
	return input, nil
}
