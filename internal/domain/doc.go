// Package domain содержит основные типы предметной области Conveyor:
// элементы проекта, ресурсы, соединения и переходы (jumps).
//
// Типы в этом пакете не зависят от остальных пакетов и описывают
// "словарь" системы:
//   - Resource   — неизменяемое описание доступности данных
//   - Connection — направленное ребро, передающее ресурсы вперёд
//   - Jump       — условное обратное ребро (цикл внутри DAG)
//   - ProjectItem — контракт элемента проекта (реализации — снаружи)
//
// Все типы сериализуются в словари (map[string]any) и восстанавливаются
// из них — это формат, в котором проект хранится на диске и передаётся
// движку выполнения.
package domain
