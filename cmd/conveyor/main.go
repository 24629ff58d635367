// Conveyor — безголовый инструмент выполнения проектов-конвейеров.
//
// Использование:
//
//	conveyor [--project DIR] [--json] <command> [flags]
//
// Команды:
//
//	list      Элементы, соединения и переходы проекта
//	validate  Проверка ацикличности подграфов
//	execute   Выполнение проекта, локальное или удалённое
//	watch     Наблюдение за потоком событий выполнения
//	apply     Применение скрипта структурных правок
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/conveyorhq/conveyor/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd(version)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var argErr *cli.ArgumentError
		if errors.As(err, &argErr) {
			os.Exit(cli.ExitArgumentError)
		}
		os.Exit(cli.ExitError)
	}
}
