// Package scheduler выполняет проект по расписанию.
//
// Расписание — стандартное пятипольное cron-выражение с опциональной
// часовой зоной. Планировщик спит до следующего срока, запускает
// выполнение и ждёт его конца: запуски не накладываются, сроки,
// пропущенные за время долгого выполнения, не навёрстываются.
//
// Структура:
//   - cron.go      — разбор cron-выражений и вычисление следующего срока
//   - scheduler.go — цикл планировщика
package scheduler
