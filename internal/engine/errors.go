package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Ошибки построения и валидации DAG.
var (
	// ErrEmptyDAG — DAG без единого узла. Это сломанный инвариант
	// вызывающей стороны, а не пользовательская ошибка.
	ErrEmptyDAG = errors.New("DAG has no nodes")

	// ErrUnknownNode — ребро ссылается на несуществующий узел.
	ErrUnknownNode = errors.New("edge references unknown node")

	// ErrEngineInit — локальный движок не смог инициализироваться.
	ErrEngineInit = errors.New("engine initialization failed")

	// ErrEngineClosed — поток событий исчерпан (движок завершился).
	ErrEngineClosed = errors.New("engine event stream closed")
)

// CycleError — DAG содержит цикл. Называет вовлечённые элементы.
type CycleError struct {
	// Nodes — элементы, оставшиеся в цикле после топологической сортировки.
	Nodes []string
}

// Error реализует интерфейс error.
func (e *CycleError) Error() string {
	return fmt.Sprintf("graph contains a cycle involving: %s", strings.Join(e.Nodes, ", "))
}
