package execution

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/conveyorhq/conveyor/internal/console"
	"github.com/conveyorhq/conveyor/internal/domain"
	"github.com/conveyorhq/conveyor/internal/engine"
	"github.com/conveyorhq/conveyor/internal/remote"
	"github.com/conveyorhq/conveyor/internal/telemetry"
)

// serverExecutionErrorTag — тег ошибки сервера посреди потока событий.
// Логируется и трактуется как провал DAG.
const serverExecutionErrorTag = "server_execution_error"

// RemoteManager выполняет DAG на отсоединённом сервере выполнения.
//
// Фоновая горутина владеет PULL-сокетом: принимает и декодирует по
// одному событию за раз и пересылает их в вызывающий поток через
// потокобезопасную очередь, потребляемую GetEngineEvent.
//
// Ошибки достижимости и инициализации не поднимаются исключениями:
// они превращаются в синтетические события server_init_failed /
// remote_execution_init_failed, чтобы воркер реагировал на все
// терминальные условия единообразно.
type RemoteManager struct {
	settings Settings
	logger   *slog.Logger

	events chan engine.Event

	mu     sync.Mutex
	jobID  string
	client *remote.Client
}

// NewRemoteManager создаёт удалённый менеджер.
// jobID назначается до старта фоновой горутины и после этого
// читается без мьютекса только ею.
func NewRemoteManager(settings Settings, jobID string, logger *slog.Logger) *RemoteManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteManager{
		settings: settings,
		logger:   logger,
		jobID:    jobID,
		events:   make(chan engine.Event, 512),
	}
}

// JobID возвращает id удалённого задания.
func (m *RemoteManager) JobID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobID
}

// RunEngine запускает удалённое выполнение в фоне.
// Ошибки подключения придут синтетическими событиями через поток.
func (m *RemoteManager) RunEngine(input *engine.Input) error {
	go m.runRemote(input)
	return nil
}

// runRemote — тело фоновой горутины удалённого выполнения.
// Канал событий закрывается на выходе: после терминального события
// GetEngineEvent возвращает engine.ErrEngineClosed, а не блокируется.
func (m *RemoteManager) runRemote(input *engine.Input) {
	defer close(m.events)

	client, err := remote.NewClient(m.settings.Host, m.settings.Port, m.settings.PingTimeout, m.logger)
	if err != nil {
		m.logger.Error("cannot reach execution server", "error", err)
		m.events <- engine.Event{Type: engine.EventServerInitFailed, Data: map[string]any{
			"msg_text": err.Error(),
		}}
		return
	}
	m.mu.Lock()
	m.client = client
	m.mu.Unlock()

	jobID := m.JobID()
	if jobID == "" || jobID == LocalJobID {
		jobID, err = client.PrepareExecution(input.ProjectDir)
		if err != nil {
			m.initFailed(fmt.Sprintf("cannot upload project: %v", err))
			return
		}
		m.mu.Lock()
		m.jobID = jobID
		m.mu.Unlock()
	}

	inputJSON, err := input.ToJSON()
	if err != nil {
		m.initFailed(err.Error())
		return
	}
	if err := client.StartExecution(jobID, inputJSON); err != nil {
		m.initFailed(fmt.Sprintf("cannot start execution: %v", err))
		return
	}

	m.pullLoop(client, input.ProjectDir, telemetry.WithJobID(m.logger, jobID))
}

// pullLoop принимает события до терминального dag_exec_finished.
func (m *RemoteManager) pullLoop(client *remote.Client, projectDir string, logger *slog.Logger) {
	for {
		ev, err := client.PullEvent()
		if err != nil {
			logger.Error("event stream broken", "error", err)
			m.events <- engine.Event{Type: engine.EventMsg, Data: map[string]any{
				"msg_type": "msg_error",
				"msg_text": fmt.Sprintf("Event stream broken: %v", err),
			}}
			m.events <- engine.Event{Type: engine.EventDagExecFinished, Data: map[string]any{
				"state": string(domain.DagStateFailed),
			}}
			return
		}

		if tag, _ := ev.Data["event_type"].(string); tag == serverExecutionErrorTag {
			logger.Error("server execution error", "data", ev.Data)
			m.events <- engine.Event{Type: engine.EventMsg, Data: map[string]any{
				"msg_type": "msg_error",
				"msg_text": fmt.Sprintf("Server execution error: %v", ev.Data["msg_text"]),
			}}
			m.events <- engine.Event{Type: engine.EventDagExecFinished, Data: map[string]any{
				"state": string(domain.DagStateFailed),
			}}
			return
		}

		if ev.Type == engine.EventDagExecFinished {
			// Выходные файлы вытягиваются до того, как потребитель
			// увидит терминальное событие: к моменту завершения
			// файлы уже на месте.
			if domain.ParseDagState(ev.State()) == domain.DagStateCompleted {
				if err := client.RetrieveFiles(projectDir); err != nil {
					logger.Error("cannot retrieve output files", "error", err)
					m.events <- engine.Event{Type: engine.EventMsg, Data: map[string]any{
						"msg_type": "msg_error",
						"msg_text": fmt.Sprintf("Cannot retrieve output files: %v", err),
					}}
				}
			}
			m.events <- ev
			return
		}

		m.events <- ev
	}
}

// initFailed отправляет синтетическое событие провала инициализации.
func (m *RemoteManager) initFailed(text string) {
	m.logger.Error("remote execution init failed", "error", text)
	m.events <- engine.Event{Type: engine.EventRemoteExecutionInitFailed, Data: map[string]any{
		"msg_text": text,
	}}
}

// GetEngineEvent блокируется до следующего события из очереди.
func (m *RemoteManager) GetEngineEvent() (engine.Event, error) {
	ev, ok := <-m.events
	if !ok {
		return engine.Event{}, engine.ErrEngineClosed
	}
	return ev, nil
}

// StopEngine посылает серверу stop_execution. Лучшая из возможных
// остановка: терминальное событие придёт через поток.
func (m *RemoteManager) StopEngine() {
	m.mu.Lock()
	client, jobID := m.client, m.jobID
	m.mu.Unlock()
	if client == nil {
		return
	}
	if err := client.StopExecution(jobID); err != nil {
		m.logger.Warn("stop request failed", "job_id", jobID, "error", err)
	}
}

// AnswerPrompt передаёт ответ пользователя серверу.
func (m *RemoteManager) AnswerPrompt(itemName string, accepted bool) error {
	m.mu.Lock()
	client, jobID := m.client, m.jobID
	m.mu.Unlock()
	if client == nil {
		return remote.ErrRemoteEngineInit
	}
	return client.AnswerPrompt(jobID, itemName, accepted)
}

// IsPersistentCommandComplete транслирует проверку законченности серверу.
func (m *RemoteManager) IsPersistentCommandComplete(key console.Key, cmd string) (bool, error) {
	m.mu.Lock()
	client, jobID := m.client, m.jobID
	m.mu.Unlock()
	if client == nil {
		return false, remote.ErrRemoteEngineInit
	}
	return client.IsPersistentCommandComplete(jobID, key, cmd)
}

// IssuePersistentCommand транслирует команду консоли серверу.
func (m *RemoteManager) IssuePersistentCommand(key console.Key, cmd string) (<-chan console.Message, error) {
	m.mu.Lock()
	client, jobID := m.client, m.jobID
	m.mu.Unlock()
	if client == nil {
		return nil, remote.ErrRemoteEngineInit
	}
	return client.IssuePersistentCommand(jobID, key, cmd)
}

// RestartPersistent перезапускает удалённую консоль.
func (m *RemoteManager) RestartPersistent(key console.Key) error {
	return m.persistentOp(func(c *remote.Client, jobID string) error {
		return c.RestartPersistent(jobID, key)
	})
}

// InterruptPersistent прерывает вычисление в удалённой консоли.
func (m *RemoteManager) InterruptPersistent(key console.Key) error {
	return m.persistentOp(func(c *remote.Client, jobID string) error {
		return c.InterruptPersistent(jobID, key)
	})
}

// KillPersistent завершает удалённую консоль.
func (m *RemoteManager) KillPersistent(key console.Key) error {
	return m.persistentOp(func(c *remote.Client, jobID string) error {
		return c.KillPersistent(jobID, key)
	})
}

// persistentOp — общий каркас одноразовых операций консоли.
func (m *RemoteManager) persistentOp(op func(*remote.Client, string) error) error {
	m.mu.Lock()
	client, jobID := m.client, m.jobID
	m.mu.Unlock()
	if client == nil {
		return remote.ErrRemoteEngineInit
	}
	return op(client, jobID)
}

// Close закрывает клиент сервера.
func (m *RemoteManager) Close() {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()
	if client != nil {
		client.Close()
	}
}
