// Package mq зеркалирует события выполнения Conveyor в RabbitMQ.
//
// Структура:
//   - connection.go — соединение с брокером (reconnect, graceful shutdown)
//   - topology.go   — объявление обменника и очереди наблюдателя
//   - publisher.go  — публикация событий выполнения
//   - consumer.go   — подписка на поток событий (команда watch)
//
// Типы событий:
//   - run.started   — выполнение DAG началось
//   - item.finished — элемент завершён
//   - run.finished  — выполнение DAG завершено
//
// Зеркало необязательно: события публикуются только при заданном
// адресе брокера.
package mq
