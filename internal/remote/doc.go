// Package remote реализует клиент проводного протокола отсоединённого
// сервера выполнения.
//
// Протокол — гибрид запрос/ответ и потока:
//   - REQ-сокет: один запрос в полёте, ответ соотносится неявно
//     ("отправил — блокируюсь на приёме")
//   - PULL-сокет: односторонний поток событий и файлов; его порт
//     сообщается в ответе на start_execution
//
// Сообщение — кортеж (command, id, json-данные, [имена файлов]),
// сериализуемый в мультифреймовое сообщение: JSON-заголовок отдельным
// фреймом, сырые байты каждого файла — отдельными фреймами.
//
// Достижимость сервера проверяется жадно при создании клиента: ping
// со случайным корреляционным id под жёстким таймаутом. Несовпадение
// id или таймаут — фатальная ошибка инициализации до любой попытки
// выполнения.
package remote
