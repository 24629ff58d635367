// Package project реализует фасад проекта Conveyor.
//
// Проект владеет элементами, соединениями и переходами, поддерживает
// их структурную целостность (уникальность имён и соединений,
// ацикличность, корректность переходов), распространяет ресурсы между
// соседями и запускает выполнение DAG через менеджеры выполнения.
//
// Все операции фасада потокобезопасны: внутреннее состояние защищено
// одним мьютексом, колбэки выполнения вызываются вне его.
package project
