package project

import "errors"

// Ошибки структурных операций проекта.
var (
	// ErrInvalidName — имя элемента не проходит валидацию.
	ErrInvalidName = errors.New("invalid item name")

	// ErrItemExists — элемент с таким именем уже есть в проекте.
	ErrItemExists = errors.New("item already exists")

	// ErrUnknownItem — элемент с таким именем в проекте отсутствует.
	ErrUnknownItem = errors.New("unknown item")

	// ErrConnectionExists — соединение между этой парой уже есть.
	ErrConnectionExists = errors.New("connection already exists")

	// ErrUnknownConnection — такого соединения в проекте нет.
	ErrUnknownConnection = errors.New("unknown connection")

	// ErrSelfConnection — соединение элемента с самим собой запрещено;
	// цикл из одного элемента выражается переходом.
	ErrSelfConnection = errors.New("connection endpoints must differ")

	// ErrInvalidJump — переход нарушает инварианты (разные DAG,
	// направление вперёд или пересечение с другим переходом).
	ErrInvalidJump = errors.New("invalid jump")

	// ErrUnknownJump — такого перехода в проекте нет.
	ErrUnknownJump = errors.New("unknown jump")

	// ErrAlreadyRunning — проект уже выполняется.
	ErrAlreadyRunning = errors.New("project execution already in progress")

	// ErrNothingToExecute — в выборе не оказалось ни одного
	// исполняемого DAG.
	ErrNothingToExecute = errors.New("nothing to execute")
)
