// Flowline CLI — выполнение файлов workflow локально и управление
// workflows, runs и schedules через HTTP API.
//
// Использование:
//
//	flowline [--api-url URL] [-o json] <command> [flags]
//
// Команды:
//
//	run        Выполнить файл workflow локально
//	validate   Проверить файл workflow
//	history    История локальных run
//	workflows  Сохранённые workflows
//	runs       Run на сервере
//	schedules  Cron-расписания
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Flowline/internal/app"
	"github.com/shaiso/Flowline/internal/cli"
	"github.com/shaiso/Flowline/internal/config"
	"github.com/shaiso/Flowline/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	// Лог процесса не смешивается с логом run: по умолчанию только предупреждения.
	level := slog.LevelWarn
	if os.Getenv("LOG_LEVEL") != "" {
		level = telemetry.LogLevel()
	}
	logger := telemetry.SetupLoggerTo(os.Stderr, level, "text")

	engineFn := func(ctx context.Context) (cli.Executor, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		eng := app.NewEngine(ctx, cfg, app.EngineDeps{Logger: logger})
		return eng, eng.Close, nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := cli.NewRootCmd(version, engineFn).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
