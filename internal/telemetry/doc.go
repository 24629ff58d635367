// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает:
//   - logging.go — structured logging через slog
//   - metrics.go — Prometheus метрики выполнения DAG
//
// Безголовый режим использует единый формат логирования и по запросу
// экспортирует метрики на /metrics endpoint.
package telemetry
