// Package execution связывает валидированный DAG с работающим
// выполнением.
//
// Включает:
//   - manager.go — интерфейс Manager и выбор локального/удалённого варианта
//   - local.go   — локальный менеджер поверх движка в процессе
//   - remote.go  — удалённый менеджер поверх проводного протокола
//   - worker.go  — воркер: один на каждый одновременно выполняемый DAG
//
// Менеджер предоставляет вытягивающий поток событий: GetEngineEvent
// блокируется до следующего структурированного события. Воркер владеет
// фоновой горутиной, транслирует события в обработчики верхнего уровня
// и агрегирует вывод по элементам.
package execution
