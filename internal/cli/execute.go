package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/conveyorhq/conveyor/internal/domain"
	"github.com/conveyorhq/conveyor/internal/execution"
	"github.com/conveyorhq/conveyor/internal/history"
	"github.com/conveyorhq/conveyor/internal/mq"
	"github.com/conveyorhq/conveyor/internal/project"
	"github.com/conveyorhq/conveyor/internal/scheduler"
	"github.com/conveyorhq/conveyor/internal/telemetry"
)

func newExecuteCmd(load loadFunc, outputFn func() *Output) *cobra.Command {
	var selectItems []string
	var cronExpr string
	var timezone string
	var metricsAddr string
	var remoteAddr string
	var forceLocal bool
	var withHistory bool

	cmd := &cobra.Command{
		Use:   "execute",
		Short: "Execute the project or a selection of its items",
		Args:  wrapArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			logger := telemetry.SetupLogger()
			ctx := telemetry.WithLogger(cmd.Context(), logger)

			p, err := load(project.WithLogger(logger))
			if err != nil {
				return err
			}

			if remoteAddr != "" && forceLocal {
				return argumentErrorf("--remote and --local are mutually exclusive")
			}
			if remoteAddr != "" {
				host, portStr, err := net.SplitHostPort(remoteAddr)
				if err != nil {
					return argumentErrorf("invalid --remote address %q: %v", remoteAddr, err)
				}
				port, err := strconv.Atoi(portStr)
				if err != nil {
					return argumentErrorf("invalid --remote port %q", portStr)
				}
				settings := p.ExecutionSettings()
				settings.RemoteEnabled = true
				settings.Host = host
				settings.Port = port
				p.SetExecutionSettings(settings)
			}
			if forceLocal {
				settings := p.ExecutionSettings()
				settings.RemoteEnabled = false
				p.SetExecutionSettings(settings)
			}

			if metricsAddr != "" {
				go serveMetrics(metricsAddr, logger)
			}

			var store *history.Store
			if withHistory {
				pool, err := history.NewPool(ctx)
				if err != nil {
					return fmt.Errorf("connect history db: %w", err)
				}
				defer pool.Close()
				store = history.NewStore(pool)
			}

			var publisher *mq.Publisher
			if url := mq.URLFromEnv(); url != "" {
				conn, err := mq.NewConnection(url, logger)
				if err != nil {
					return fmt.Errorf("connect event broker: %w", err)
				}
				defer conn.Close()
				if err := mq.SetupTopology(conn); err != nil {
					return err
				}
				publisher = mq.NewPublisher(conn, logger)
			}

			runner := &projectRunner{
				project:   p,
				selection: selectItems,
				out:       out,
				store:     store,
				publisher: publisher,
			}

			if cronExpr != "" {
				sched, err := scheduler.New(scheduler.Config{
					CronExpr: cronExpr,
					Timezone: timezone,
					Run:      runner.runOnce,
					Logger:   logger,
				})
				if err != nil {
					return argumentErrorf("%v", err)
				}
				if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
					return err
				}
				return nil
			}
			return runner.runOnce(ctx)
		},
	}

	cmd.Flags().StringSliceVar(&selectItems, "select", nil, "Execute only the named items (repeatable)")
	cmd.Flags().StringVar(&cronExpr, "schedule", "", "Execute repeatedly on a cron schedule")
	cmd.Flags().StringVar(&timezone, "timezone", "", "Timezone for --schedule (default UTC)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&remoteAddr, "remote", "", "Execute on a remote engine server (host:port)")
	cmd.Flags().BoolVar(&forceLocal, "local", false, "Force in-process execution")
	cmd.Flags().BoolVar(&withHistory, "history", false, "Record the run in the history database (DB_URL)")
	return cmd
}

// projectRunner — одно или несколько выполнений проекта с выводом
// прогресса, журналом истории и зеркалом событий.
type projectRunner struct {
	project   *project.Project
	selection []string
	out       *Output
	store     *history.Store
	publisher *mq.Publisher
}

// runOnce выполняет проект один раз и блокируется до завершения.
// Ошибки журнала истории и зеркала событий логируются и не срывают
// выполнение: они вторичны по отношению к самому запуску.
func (r *projectRunner) runOnce(ctx context.Context) error {
	runID := uuid.New()
	started := time.Now().UTC()
	logger := telemetry.FromContext(ctx)

	hooks := execution.Hooks{
		OnDagStarted: func(items []string) {
			r.out.Success(fmt.Sprintf("Executing: %v", items))
			if r.publisher != nil {
				if err := r.publisher.PublishRunStarted(ctx, r.project.Name(), runID.String(), items); err != nil {
					logger.Error("cannot publish run start", "error", err)
				}
			}
		},
		OnItemsIgnored: func(items []string) {
			r.out.Success(fmt.Sprintf("Ignored: %v", items))
		},
		OnItemStarted: func(item, filterID string) {
			r.out.Success(fmt.Sprintf("  %s started%s", item, filterSuffix(filterID)))
		},
		OnItemFinished: func(item, filterID, state string) {
			r.out.Success(fmt.Sprintf("  %s finished%s: %s", item, filterSuffix(filterID), state))
			if r.store != nil {
				err := r.store.RecordItemFinished(ctx, &history.ItemEvent{
					RunID:      runID,
					Item:       item,
					FilterID:   filterID,
					State:      domain.ItemState(state),
					FinishedAt: time.Now().UTC(),
				})
				if err != nil {
					logger.Error("cannot record item result", "item", item, "error", err)
				}
			}
			if r.publisher != nil {
				err := r.publisher.PublishItemFinished(ctx, r.project.Name(), runID.String(),
					item, filterID, domain.ItemState(state))
				if err != nil {
					logger.Error("cannot publish item result", "item", item, "error", err)
				}
			}
		},
		OnLog: func(item, filterID, msgType, text string) {
			r.out.Line("[%s%s] %s", item, filterSuffix(filterID), text)
		},
		OnFlash: func(item string) {},
		OnServerStatus: func(text string) {
			r.out.Success("Server: " + text)
		},
	}

	if r.store != nil {
		err := r.store.CreateRun(ctx, &history.Run{
			ID:        runID,
			Project:   r.project.Name(),
			Items:     r.selection,
			State:     domain.DagStateRunning,
			Remote:    r.project.ExecutionSettings().RemoteEnabled,
			StartedAt: started,
		})
		if err != nil {
			logger.Error("cannot record run start", "run", runID, "error", err)
		}
	}

	opts := project.RunOptions{Hooks: hooks}
	if len(r.selection) > 0 {
		unknown, err := r.project.ExecuteSelected(r.selection, opts)
		for _, name := range unknown {
			r.out.Error(fmt.Sprintf("unknown item %q ignored", name))
		}
		if err != nil {
			return err
		}
	} else {
		if err := r.project.Execute(opts); err != nil {
			return err
		}
	}

	// Остановка по Ctrl-C: просим воркеры остановиться и ждём
	// терминальные события через обычный поток.
	stopWatch := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			r.project.Stop()
		case <-stopWatch:
		}
	}()

	state := r.project.Wait()
	close(stopWatch)

	if r.store != nil {
		errText := ""
		if state == domain.DagStateFailed {
			errText = "execution failed"
		}
		if err := r.store.FinishRun(ctx, runID, state, errText); err != nil {
			logger.Error("cannot record run result", "run", runID, "error", err)
		}
	}
	if r.publisher != nil {
		if err := r.publisher.PublishRunFinished(ctx, r.project.Name(), runID.String(), state); err != nil {
			logger.Error("cannot publish run result", "run", runID, "error", err)
		}
	}

	r.out.Success(fmt.Sprintf("Execution finished: %s", state))
	if r.project.ExecutionSettings().RemoteEnabled {
		// Идентификатор задания, полученный при загрузке проекта
		// на сервер, сохраняется для последующих запусков.
		if err := r.project.Save(); err != nil {
			r.out.Error(err.Error())
		}
	}
	if state != domain.DagStateCompleted {
		return fmt.Errorf("execution finished with state %s", state)
	}
	return nil
}

// filterSuffix форматирует идентификатор фильтра для вывода.
func filterSuffix(filterID string) string {
	if filterID == "" {
		return ""
	}
	return " (" + filterID + ")"
}

// serveMetrics поднимает эндпоинт /metrics.
func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server stopped", "error", err)
	}
}
