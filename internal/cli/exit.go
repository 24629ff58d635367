package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Коды завершения процесса.
const (
	ExitOK            = 0
	ExitError         = 1
	ExitArgumentError = 2
)

// ArgumentError — ошибка разбора аргументов или флагов.
// Процесс завершается кодом ExitArgumentError.
type ArgumentError struct {
	Err error
}

// Error возвращает текст ошибки.
func (e *ArgumentError) Error() string { return e.Err.Error() }

// Unwrap возвращает вложенную ошибку.
func (e *ArgumentError) Unwrap() error { return e.Err }

// argumentErrorf создаёт ArgumentError из форматной строки.
func argumentErrorf(format string, args ...any) error {
	return &ArgumentError{Err: fmt.Errorf(format, args...)}
}

// wrapArgs оборачивает ошибки валидатора позиционных аргументов cobra
// в ArgumentError.
func wrapArgs(validator cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := validator(cmd, args); err != nil {
			return &ArgumentError{Err: err}
		}
		return nil
	}
}

// WrapFlagError — обработчик ошибок флагов для cobra.SetFlagErrorFunc.
func WrapFlagError(cmd *cobra.Command, err error) error {
	return &ArgumentError{Err: err}
}
