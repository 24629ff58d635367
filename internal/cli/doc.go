// Package cli реализует инструмент командной строки Conveyor.
//
// # Обзор
//
// CLI — безголовый интерфейс к проектам Conveyor: просмотр структуры,
// валидация, выполнение (локальное и удалённое), наблюдение за потоком
// событий и скриптовая правка проекта.
//
// # Ключевые компоненты
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json-кодировщик с отступами) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: conveyor list --json | jq .
//
// ## Commands
//
//   - list     — элементы, соединения и переходы проекта
//   - validate — проверка ацикличности подграфов
//   - execute  — выполнение проекта или выбора, разово или по cron
//   - watch    — подписка на зеркало событий в RabbitMQ
//   - apply    — применение скрипта структурных правок
//
// Каждая команда создаётся фабричной функцией (newListCmd и т.д.),
// принимающей замыкания для ленивого создания Output и загрузки
// проекта после разбора PersistentFlags.
//
// # Коды завершения
//
//   - 0 — успех
//   - 1 — ошибка выполнения
//   - 2 — ошибка аргументов
package cli
