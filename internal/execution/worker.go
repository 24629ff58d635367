package execution

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/conveyorhq/conveyor/internal/domain"
	"github.com/conveyorhq/conveyor/internal/engine"
	"github.com/conveyorhq/conveyor/internal/telemetry"
)

// Hooks — обработчики верхнего уровня для событий воркера.
// Любое поле может быть nil: такие уведомления просто не доставляются.
type Hooks struct {
	// OnDagStarted — DAG начал выполняться; передаются имена элементов,
	// разрешённых к выполнению, отсортированные по имени.
	OnDagStarted func(items []string)

	// OnItemsIgnored — элементы DAG, исключённые из выполнения.
	OnItemsIgnored func(items []string)

	// OnItemStarted / OnItemFinished — начало и конец выполнения элемента.
	OnItemStarted  func(item, filterID string)
	OnItemFinished func(item, filterID, state string)

	// OnLog — строка журнала элемента. Вызывается после завершения
	// выполнения элемента, строки одного элемента не перемешиваются
	// с чужими.
	OnLog func(item, filterID, msgType, text string)

	// OnPrompt — запрос решения у пользователя. Возвращаемое значение
	// уходит движку как ответ. nil-обработчик отвечает "да".
	OnPrompt func(item string, data map[string]any) bool

	// OnFlash — кратковременная индикация на элементе.
	OnFlash func(item string)

	// OnServerStatus — статусное сообщение сервера выполнения.
	OnServerStatus func(text string)

	// OnFinished — терминальное состояние DAG.
	OnFinished func(state domain.DagState)
}

// bufferKey — ключ буфера журнала: выполнение элемента под фильтром.
type bufferKey struct {
	item     string
	filterID string
}

// bufferedMsg — одна отложенная строка журнала.
type bufferedMsg struct {
	msgType string
	text    string
}

// Worker — воркер одного выполняемого DAG.
//
// Владеет ровно одной фоновой горутиной: она вытягивает события из
// менеджера и раскладывает их по обработчикам. Строки журнала элементов
// буферизуются по ключу (элемент, id фильтра), чтобы параллельные
// фильтрованные выполнения одного элемента не перемешивали вывод;
// буфер сбрасывается при завершении выполнения элемента.
//
// Состояния: created → running → (COMPLETED | FAILED | USER_STOPPED).
type Worker struct {
	input  *engine.Input
	mgr    Manager
	hooks  Hooks
	logger *slog.Logger

	mu      sync.Mutex
	started bool
	state   domain.DagState
	logBuf  map[bufferKey][]bufferedMsg

	done chan struct{}
}

// NewWorker создаёт воркер для данного входа движка.
func NewWorker(input *engine.Input, mgr Manager, hooks Hooks, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		input:  input,
		mgr:    mgr,
		hooks:  hooks,
		logger: logger,
		state:  domain.DagStateRunning,
		logBuf: make(map[bufferKey][]bufferedMsg),
		done:   make(chan struct{}),
	}
}

// Start переводит воркер в running: вычисляет включённые и игнорируемые
// элементы, отправляет одноразовую пару уведомлений "DAG стартовал /
// элементы игнорируются" и запускает фоновую горутину.
func (w *Worker) Start() {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	var included, ignored []string
	for name := range w.input.Items {
		if w.input.ExecutionPermits[name] {
			included = append(included, name)
		} else {
			ignored = append(ignored, name)
		}
	}
	sort.Strings(included)
	sort.Strings(ignored)

	if w.hooks.OnDagStarted != nil {
		w.hooks.OnDagStarted(included)
	}
	if len(ignored) > 0 && w.hooks.OnItemsIgnored != nil {
		w.hooks.OnItemsIgnored(ignored)
	}

	telemetry.ExecutionsStarted.Inc()
	go w.run()
}

// Stop запрашивает остановку движка. Лучшая из возможных: терминальное
// событие USER_STOPPED придёт позже через обычный поток.
func (w *Worker) Stop() {
	w.mgr.StopEngine()
}

// Wait блокируется до терминального состояния воркера.
func (w *Worker) Wait() domain.DagState {
	<-w.done
	return w.State()
}

// Done возвращает канал, закрываемый при достижении терминального
// состояния.
func (w *Worker) Done() <-chan struct{} { return w.done }

// State возвращает текущее состояние воркера.
func (w *Worker) State() domain.DagState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// run — фоновая горутина воркера.
func (w *Worker) run() {
	start := time.Now()
	defer close(w.done)
	defer func() {
		telemetry.ExecutionDuration.Observe(time.Since(start).Seconds())
		telemetry.ExecutionsFinished.WithLabelValues(string(w.State())).Inc()
	}()

	// Ошибка старта движка превращается в синтетическое терминальное
	// состояние: потребители всегда видят обычное завершение.
	if err := w.mgr.RunEngine(w.input); err != nil {
		w.logger.Error("engine init failed", "error", err)
		w.finish(domain.DagStateFailed)
		return
	}

	for {
		ev, err := w.mgr.GetEngineEvent()
		if err != nil {
			w.logger.Error("event stream ended unexpectedly", "error", err)
			w.finish(domain.DagStateFailed)
			return
		}
		if terminal := w.dispatch(ev); terminal {
			return
		}
	}
}

// dispatch обрабатывает одно событие. Возвращает true для терминальных.
func (w *Worker) dispatch(ev engine.Event) bool {
	telemetry.EngineEvents.WithLabelValues(ev.Type.String()).Inc()

	switch ev.Type {
	case engine.EventExecStarted:
		if w.hooks.OnItemStarted != nil {
			w.hooks.OnItemStarted(ev.ItemName(), ev.FilterID())
		}

	case engine.EventExecFinished:
		w.flushItem(ev.ItemName(), ev.FilterID())
		if w.hooks.OnItemFinished != nil {
			w.hooks.OnItemFinished(ev.ItemName(), ev.FilterID(), ev.State())
		}

	case engine.EventMsg, engine.EventProcessMsg,
		engine.EventStandardExecutionMsg,
		engine.EventPersistentExecutionMsg,
		engine.EventKernelExecutionMsg:
		w.bufferMsg(ev)

	case engine.EventPrompt:
		// Единственное место, где воркер синхронно гоняет решение
		// пользователя туда-обратно: движок стоит до ответа.
		accepted := true
		if w.hooks.OnPrompt != nil {
			accepted = w.hooks.OnPrompt(ev.ItemName(), ev.Data)
		}
		if err := w.mgr.AnswerPrompt(ev.ItemName(), accepted); err != nil {
			telemetry.WithItem(w.logger, ev.ItemName()).Error("cannot answer prompt", "error", err)
		}

	case engine.EventFlash:
		if w.hooks.OnFlash != nil {
			w.hooks.OnFlash(ev.ItemName())
		}

	case engine.EventServerStatusMsg:
		if text, ok := ev.Data["msg_text"].(string); ok {
			w.logger.Info("server status", "msg", text)
			if w.hooks.OnServerStatus != nil {
				w.hooks.OnServerStatus(text)
			}
		}

	case engine.EventDagExecFinished:
		w.flushAll()
		w.finish(domain.ParseDagState(ev.State()))
		return true

	case engine.EventServerInitFailed, engine.EventRemoteExecutionInitFailed:
		if text, ok := ev.Data["msg_text"].(string); ok {
			w.logger.Error("remote execution failed to start", "msg", text)
		}
		w.flushAll()
		w.finish(domain.DagStateFailed)
		return true

	default:
		// Неизвестные типы молча игнорируются: новые события сервера
		// не должны ломать старых клиентов.
		w.logger.Debug("ignoring unknown engine event", "data", ev.Data)
	}
	return false
}

// bufferMsg откладывает строку журнала элемента до его завершения.
// Сообщения без элемента логируются сразу.
func (w *Worker) bufferMsg(ev engine.Event) {
	msgType, _ := ev.Data["msg_type"].(string)
	text, _ := ev.Data["msg_text"].(string)

	item := ev.ItemName()
	if item == "" {
		if msgType == "msg_error" {
			w.logger.Error(text)
		} else {
			w.logger.Info(text)
		}
		return
	}

	key := bufferKey{item: item, filterID: ev.FilterID()}
	w.mu.Lock()
	w.logBuf[key] = append(w.logBuf[key], bufferedMsg{msgType: msgType, text: text})
	w.mu.Unlock()
}

// flushItem сбрасывает буфер журнала завершившегося выполнения элемента.
// Пустой id фильтра сбрасывает все буферы элемента.
func (w *Worker) flushItem(item, filterID string) {
	w.mu.Lock()
	var flushed []bufferKey
	for key := range w.logBuf {
		if key.item != item {
			continue
		}
		if filterID != "" && key.filterID != filterID {
			continue
		}
		flushed = append(flushed, key)
	}
	sort.Slice(flushed, func(i, j int) bool {
		return flushed[i].filterID < flushed[j].filterID
	})
	buffers := make([][]bufferedMsg, 0, len(flushed))
	for _, key := range flushed {
		buffers = append(buffers, w.logBuf[key])
		delete(w.logBuf, key)
	}
	w.mu.Unlock()

	for i, key := range flushed {
		for _, m := range buffers[i] {
			if w.hooks.OnLog != nil {
				w.hooks.OnLog(key.item, key.filterID, m.msgType, m.text)
			}
		}
	}
}

// flushAll сбрасывает все оставшиеся буферы журнала.
func (w *Worker) flushAll() {
	w.mu.Lock()
	keys := make([]bufferKey, 0, len(w.logBuf))
	for key := range w.logBuf {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].item != keys[j].item {
			return keys[i].item < keys[j].item
		}
		return keys[i].filterID < keys[j].filterID
	})
	buffers := make([][]bufferedMsg, 0, len(keys))
	for _, key := range keys {
		buffers = append(buffers, w.logBuf[key])
		delete(w.logBuf, key)
	}
	w.mu.Unlock()

	for i, key := range keys {
		for _, m := range buffers[i] {
			if w.hooks.OnLog != nil {
				w.hooks.OnLog(key.item, key.filterID, m.msgType, m.text)
			}
		}
	}
}

// finish фиксирует терминальное состояние и уведомляет обработчик.
func (w *Worker) finish(state domain.DagState) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
	if w.hooks.OnFinished != nil {
		w.hooks.OnFinished(state)
	}
}
