// Package engine содержит движок выполнения DAG.
//
// Включает:
//   - dag.go    — построение, разбиение и валидация DAG
//   - events.go — структурированные события выполнения
//   - input.go  — входной контракт движка (items, connections, permits...)
//   - local.go  — локальный движок, выполняющий DAG в процессе
//
// Движок отвечает за порядок выполнения элементов на основе соединений,
// циклы переходов (jumps) и трансляцию хода выполнения в события.
package engine
