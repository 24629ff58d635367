package domain

// DagState — состояние выполнения одного DAG.
//
// Жизненный цикл:
//
//	RUNNING → COMPLETED
//	        ↘ FAILED
//	        ↘ USER_STOPPED
type DagState string

const (
	// DagStateRunning — DAG в процессе выполнения.
	DagStateRunning DagState = "RUNNING"

	// DagStateCompleted — все элементы выполнены успешно.
	DagStateCompleted DagState = "COMPLETED"

	// DagStateFailed — выполнение завершилось с ошибкой.
	DagStateFailed DagState = "FAILED"

	// DagStateUserStopped — выполнение остановлено пользователем.
	DagStateUserStopped DagState = "USER_STOPPED"
)

// IsTerminal возвращает true, если состояние финальное.
func (s DagState) IsTerminal() bool {
	switch s {
	case DagStateCompleted, DagStateFailed, DagStateUserStopped:
		return true
	default:
		return false
	}
}

// ItemState — состояние выполнения одного элемента внутри DAG.
type ItemState string

const (
	// ItemStateSuccess — элемент выполнен успешно.
	ItemStateSuccess ItemState = "SUCCESS"

	// ItemStateFailure — элемент завершился с ошибкой.
	ItemStateFailure ItemState = "FAILURE"

	// ItemStateSkipped — элемент присутствовал в DAG, но не выполнялся
	// (разрешение на выполнение было снято).
	ItemStateSkipped ItemState = "SKIPPED"

	// ItemStateStopped — выполнение элемента прервано остановкой.
	ItemStateStopped ItemState = "STOPPED"
)

// ParseDagState разбирает строку состояния из события движка.
// Неизвестные строки считаются FAILED: финальное событие с непонятным
// состоянием не должно выглядеть успехом.
func ParseDagState(s string) DagState {
	switch DagState(s) {
	case DagStateRunning, DagStateCompleted, DagStateFailed, DagStateUserStopped:
		return DagState(s)
	default:
		return DagStateFailed
	}
}
