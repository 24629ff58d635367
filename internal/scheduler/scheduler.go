package scheduler

import (
	"context"
	"log/slog"
	"time"
)

// RunFunc — одно выполнение проекта. Планировщик ждёт возврата:
// следующий срок отсчитывается после завершения выполнения.
type RunFunc func(ctx context.Context) error

// Scheduler — цикл выполнения проекта по cron-расписанию.
type Scheduler struct {
	expr     string
	timezone string
	run      RunFunc
	logger   *slog.Logger
}

// Config — конфигурация планировщика.
type Config struct {
	// CronExpr — пятипольное cron-выражение.
	CronExpr string

	// Timezone — часовая зона расписания; пустая — UTC.
	Timezone string

	// Run — выполняемая работа.
	Run RunFunc

	Logger *slog.Logger
}

// New создаёт планировщик. Выражение валидируется сразу.
func New(cfg Config) (*Scheduler, error) {
	if err := ValidateCronExpr(cfg.CronExpr); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		expr:     cfg.CronExpr,
		timezone: cfg.Timezone,
		run:      cfg.Run,
		logger:   logger,
	}, nil
}

// Run крутит цикл планировщика до отмены контекста.
// Ошибка одного выполнения логируется и не останавливает цикл.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		next, err := NextAfter(s.expr, s.timezone, time.Now())
		if err != nil {
			return err
		}
		s.logger.Info("next scheduled execution", "at", next)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		s.logger.Info("scheduled execution started")
		if err := s.run(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("scheduled execution failed", "error", err)
			continue
		}
		s.logger.Info("scheduled execution finished")
	}
}
