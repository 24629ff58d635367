package engine

// EventType — тип структурированного события выполнения.
//
// Набор закрытый; неизвестные теги с провода отображаются в EventUnknown,
// чтобы новые типы событий сервера не ломали старых клиентов.
type EventType int

// Типы событий.
const (
	// EventUnknown — нераспознанный тег (прямая совместимость).
	EventUnknown EventType = iota

	// EventExecStarted — началось выполнение элемента.
	EventExecStarted

	// EventExecFinished — завершилось выполнение элемента.
	EventExecFinished

	// EventMsg — текстовое сообщение от элемента.
	EventMsg

	// EventProcessMsg — вывод дочернего процесса элемента.
	EventProcessMsg

	// EventStandardExecutionMsg — сообщение обычного исполнения.
	EventStandardExecutionMsg

	// EventPersistentExecutionMsg — сообщение постоянного интерпретатора.
	EventPersistentExecutionMsg

	// EventKernelExecutionMsg — сообщение ядра (kernel) интерпретатора.
	EventKernelExecutionMsg

	// EventPrompt — запрос решения у пользователя; блокирует движок
	// до получения ответа.
	EventPrompt

	// EventFlash — кратковременная индикация на элементе.
	EventFlash

	// EventServerStatusMsg — статусное сообщение сервера выполнения.
	EventServerStatusMsg

	// EventDagExecFinished — терминальное событие: DAG завершён.
	EventDagExecFinished

	// EventServerInitFailed — не удалось достучаться до сервера выполнения.
	EventServerInitFailed

	// EventRemoteExecutionInitFailed — сервер не смог инициализировать
	// выполнение.
	EventRemoteExecutionInitFailed
)

// eventTags — отображение тип ↔ строковый тег провода.
var eventTags = map[EventType]string{
	EventExecStarted:               "exec_started",
	EventExecFinished:              "exec_finished",
	EventMsg:                       "event_msg",
	EventProcessMsg:                "process_msg",
	EventStandardExecutionMsg:      "standard_execution_msg",
	EventPersistentExecutionMsg:    "persistent_execution_msg",
	EventKernelExecutionMsg:        "kernel_execution_msg",
	EventPrompt:                    "prompt",
	EventFlash:                     "flash",
	EventServerStatusMsg:           "server_status_msg",
	EventDagExecFinished:           "dag_exec_finished",
	EventServerInitFailed:          "server_init_failed",
	EventRemoteExecutionInitFailed: "remote_execution_init_failed",
}

// tagToType — обратное отображение, построенное из eventTags.
var tagToType = func() map[string]EventType {
	m := make(map[string]EventType, len(eventTags))
	for t, tag := range eventTags {
		m[tag] = t
	}
	return m
}()

// ParseEventType разбирает строковый тег события.
// Неизвестный тег — EventUnknown, не ошибка.
func ParseEventType(tag string) EventType {
	if t, ok := tagToType[tag]; ok {
		return t
	}
	return EventUnknown
}

// String возвращает строковый тег типа события.
func (t EventType) String() string {
	if tag, ok := eventTags[t]; ok {
		return tag
	}
	return "unknown"
}

// Event — одно структурированное событие выполнения.
type Event struct {
	// Type — тип события.
	Type EventType

	// Data — полезная нагрузка события. Общие поля:
	// "item_name", "filter_id", "direction", "state", "msg_type", "msg_text".
	Data map[string]any
}

// ItemName возвращает имя элемента из полезной нагрузки.
func (e Event) ItemName() string {
	if v, ok := e.Data["item_name"].(string); ok {
		return v
	}
	return ""
}

// FilterID возвращает идентификатор фильтрованного выполнения.
func (e Event) FilterID() string {
	if v, ok := e.Data["filter_id"].(string); ok {
		return v
	}
	return ""
}

// State возвращает строку состояния из полезной нагрузки.
func (e Event) State() string {
	if v, ok := e.Data["state"].(string); ok {
		return v
	}
	return ""
}
