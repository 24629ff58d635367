// Package history хранит журнал выполнений проектов в PostgreSQL.
//
// Журнал необязателен: безголовый режим пишет в него только при
// заданном адресе базы. Каждое выполнение DAG — строка в runs,
// завершения элементов — строки в item_events.
package history
