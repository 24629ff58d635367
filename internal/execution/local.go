package execution

import (
	"fmt"
	"log/slog"

	"github.com/conveyorhq/conveyor/internal/console"
	"github.com/conveyorhq/conveyor/internal/engine"
)

// LocalManager выполняет DAG движком в текущем процессе.
type LocalManager struct {
	factory  engine.ExecutableFactory
	consoles *console.Registry
	logger   *slog.Logger

	eng *engine.LocalEngine
}

// NewLocalManager создаёт локальный менеджер.
func NewLocalManager(factory engine.ExecutableFactory, consoles *console.Registry, logger *slog.Logger) *LocalManager {
	if logger == nil {
		logger = slog.Default()
	}
	if consoles == nil {
		consoles = console.NewRegistry(logger)
	}
	return &LocalManager{
		factory:  factory,
		consoles: consoles,
		logger:   logger,
	}
}

// RunEngine создаёт движок и запускает выполнение в фоне.
func (m *LocalManager) RunEngine(input *engine.Input) error {
	eng, err := engine.NewLocalEngine(input, m.factory, m.logger)
	if err != nil {
		return err
	}
	m.eng = eng
	go eng.Run()
	return nil
}

// GetEngineEvent блокируется до следующего события движка.
func (m *LocalManager) GetEngineEvent() (engine.Event, error) {
	if m.eng == nil {
		return engine.Event{}, fmt.Errorf("%w: engine not running", engine.ErrEngineInit)
	}
	ev, ok := <-m.eng.Events()
	if !ok {
		return engine.Event{}, engine.ErrEngineClosed
	}
	return ev, nil
}

// StopEngine запрашивает кооперативную остановку движка.
func (m *LocalManager) StopEngine() {
	if m.eng != nil {
		m.eng.Stop()
	}
}

// AnswerPrompt — локальный движок не задаёт вопросов; ответ
// принимается и игнорируется.
func (m *LocalManager) AnswerPrompt(itemName string, accepted bool) error {
	return nil
}

// IsPersistentCommandComplete проверяет законченность команды
// в локальной консоли.
func (m *LocalManager) IsPersistentCommandComplete(key console.Key, cmd string) (bool, error) {
	return m.consoles.IsComplete(key, cmd)
}

// IssuePersistentCommand выполняет команду в локальной консоли.
func (m *LocalManager) IssuePersistentCommand(key console.Key, cmd string) (<-chan console.Message, error) {
	return m.consoles.IssueCommand(key, cmd)
}

// RestartPersistent перезапускает локальную консоль.
func (m *LocalManager) RestartPersistent(key console.Key) error {
	return m.consoles.Restart(key)
}

// InterruptPersistent прерывает вычисление в локальной консоли.
func (m *LocalManager) InterruptPersistent(key console.Key) error {
	return m.consoles.Interrupt(key)
}

// KillPersistent завершает локальную консоль.
func (m *LocalManager) KillPersistent(key console.Key) error {
	return m.consoles.Kill(key)
}

// Consoles возвращает реестр локальных консолей.
func (m *LocalManager) Consoles() *console.Registry { return m.consoles }

// Close останавливает движок, если он ещё работает.
func (m *LocalManager) Close() {
	m.StopEngine()
}
