package execution

import (
	"log/slog"
	"time"

	"github.com/conveyorhq/conveyor/internal/console"
	"github.com/conveyorhq/conveyor/internal/engine"
)

// LocalJobID — сентинел id задания для локального выполнения:
// удалённого задания нет.
const LocalJobID = "1"

// Settings — настройки выбора и подключения движка выполнения.
//
// RemoteEnabled — сохраняемый переключатель: true отправляет выполнение
// на отсоединённый сервер, false выполняет в процессе.
type Settings struct {
	// RemoteEnabled — выполнять на удалённом сервере.
	RemoteEnabled bool

	// Host, Port — адрес сервера выполнения.
	Host string
	Port int

	// PingTimeout — таймаут жадной проверки достижимости.
	PingTimeout time.Duration
}

// Manager — единый интерфейс запуска выполнения одного DAG,
// локально или удалённо.
type Manager interface {
	// RunEngine запускает выполнение для данного входа движка.
	RunEngine(input *engine.Input) error

	// GetEngineEvent блокируется до следующего события движка.
	// После терминального события возвращает engine.ErrEngineClosed.
	GetEngineEvent() (engine.Event, error)

	// StopEngine запрашивает кооперативную остановку. Возвращается
	// сразу; терминальное событие придёт через поток.
	StopEngine()

	// AnswerPrompt передаёт движку ответ пользователя на prompt.
	AnswerPrompt(itemName string, accepted bool) error

	// Протокол постоянной консоли.
	IsPersistentCommandComplete(key console.Key, cmd string) (bool, error)
	IssuePersistentCommand(key console.Key, cmd string) (<-chan console.Message, error)
	RestartPersistent(key console.Key) error
	InterruptPersistent(key console.Key) error
	KillPersistent(key console.Key) error

	// Close освобождает ресурсы менеджера.
	Close()
}

// NewManager выбирает реализацию по настройкам.
//
// Для локального выполнения jobID игнорируется (всегда LocalJobID);
// для удалённого пустой jobID означает, что проект ещё не загружен
// на сервер — менеджер выполнит загрузку сам.
func NewManager(
	settings Settings,
	jobID string,
	factory engine.ExecutableFactory,
	consoles *console.Registry,
	logger *slog.Logger,
) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if settings.RemoteEnabled {
		return NewRemoteManager(settings, jobID, logger)
	}
	return NewLocalManager(factory, consoles, logger)
}
