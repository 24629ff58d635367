// Package console реализует протокол постоянной консоли:
// обмен командами с долгоживущим процессом интерпретатора,
// адресуемым составным ключом (элемент, идентификатор фильтра).
//
// Протокол двухфазный: сначала синхронная проверка IsComplete
// ("введённый текст — законченная конструкция?"), затем IssueCommand,
// возвращающий ленивый поток сообщений stdin/stdout/stderr.
// Перезапуск, прерывание и завершение — независимые одноразовые
// операции над тем же ключом; история команд при них сохраняется.
package console
