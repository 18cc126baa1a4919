package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/orchestrator"
	"github.com/shaiso/Flowline/internal/repo"
)

// ErrRunNotSucceeded — run завершился не со статусом SUCCEEDED.
// Команда run возвращает её, чтобы процесс вышел с ненулевым кодом.
var ErrRunNotSucceeded = errors.New("run did not succeed")

// Executor — движок для локальных команд.
type Executor interface {
	Execute(ctx context.Context, wf *domain.Workflow, opts orchestrator.ExecuteOptions) (*domain.ExecutionResult, error)
	Validate(wf *domain.Workflow) error
}

// EngineFunc создаёт движок; release освобождает его ресурсы.
type EngineFunc func(ctx context.Context) (exec Executor, release func(), err error)

// DefaultHistoryPath — файл локальной истории run.
func DefaultHistoryPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "flowline", "runs.db")
}

// NewRunCmd — локальное выполнение workflow из файла.
func NewRunCmd(engineFn EngineFunc, outputFn func() *Output) *cobra.Command {
	var (
		live      bool
		userID    string
		data      []string
		history   string
		noHistory bool
		quiet     bool
	)

	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a workflow file locally (simulation unless --live)",
		Long: `Execute a workflow document (JSON or YAML, "-" for stdin) in this process.

By default the run is a simulation: no HTTP calls, AI requests, emails
or database queries leave the machine. --live performs them.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			wf, err := readWorkflow(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			initial, err := parseData(data)
			if err != nil {
				return err
			}

			exec, release, err := engineFn(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			opts := orchestrator.ExecuteOptions{
				UserID:      userID,
				Simulation:  !live,
				InitialData: initial,
			}
			if !quiet {
				opts.LogSinks = []engine.LogSink{engine.LogSinkFunc(out.LogEntry)}
			}

			result, execErr := exec.Execute(cmd.Context(), wf, opts)
			if result == nil {
				return execErr
			}

			if !noHistory {
				if err := saveHistory(cmd.Context(), history, result); err != nil {
					out.Error(fmt.Sprintf("run history not saved: %v", err))
				}
			}

			out.Result(result)
			if execErr != nil {
				return execErr
			}
			if result.Status != domain.RunStatusSucceeded {
				return fmt.Errorf("%w: %s", ErrRunNotSucceeded, result.Status)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&live, "live", false, "Perform external side effects (default is simulation)")
	cmd.Flags().StringVar(&userID, "user", "", "User ID for credential lookup (default: workflow userId)")
	cmd.Flags().StringArrayVar(&data, "data", nil, "Activation data for a node: NODE_ID=JSON (repeatable)")
	cmd.Flags().StringVar(&history, "history", DefaultHistoryPath(), "SQLite file for local run history")
	cmd.Flags().BoolVar(&noHistory, "no-history", false, "Do not record the run in local history")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not stream the run log")

	return cmd
}

// NewValidateCmd — проверка графа workflow без выполнения.
func NewValidateCmd(engineFn EngineFunc, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a workflow file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			wf, err := readWorkflow(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			exec, release, err := engineFn(cmd.Context())
			if err != nil {
				return err
			}
			defer release()

			if err := exec.Validate(wf); err != nil {
				return err
			}

			out.Success(fmt.Sprintf("Workflow %q is valid: %d nodes, %d connections",
				wf.Name, len(wf.Nodes), len(wf.Connections)))
			return nil
		},
	}
}

// NewHistoryCmd — история локальных run.
func NewHistoryCmd(outputFn func() *Output) *cobra.Command {
	var path string
	var limit int

	cmd := &cobra.Command{
		Use:   "history [RUN_ID]",
		Short: "Show runs executed locally with 'flowline run'",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("no local history at %s", path)
			}
			store, closeDB, err := openHistory(path)
			if err != nil {
				return err
			}
			defer closeDB()

			if len(args) == 1 {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				run, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				for _, e := range run.Logs {
					out.LogEntry(e)
				}
				out.Result(run)
				return nil
			}

			runs, err := store.List(cmd.Context(), repo.RunFilter{Limit: limit})
			if err != nil {
				return err
			}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{
					r.ID.String(), r.WorkflowID.String(), string(r.Status),
					mode(r.Simulation), formatTime(r.StartedAt),
				}
			}
			out.Print([]string{"ID", "WORKFLOW_ID", "STATUS", "MODE", "STARTED"}, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "history", DefaultHistoryPath(), "SQLite file with local run history")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs")

	return cmd
}

// readWorkflow читает документ workflow из файла или stdin ("-").
func readWorkflow(stdin io.Reader, path string) (*domain.Workflow, error) {
	var raw []byte
	var err error
	if path == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read workflow: %w", err)
	}

	wf, err := domain.DecodeWorkflow(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return wf, nil
}

// parseData разбирает значения --data вида NODE_ID=JSON.
func parseData(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	data := make(map[string]any, len(pairs))
	for _, p := range pairs {
		nodeID, raw, ok := strings.Cut(p, "=")
		if !ok || nodeID == "" {
			return nil, fmt.Errorf("invalid --data %q: want NODE_ID=JSON", p)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("invalid --data for %s: %w", nodeID, err)
		}
		data[nodeID] = v
	}
	return data, nil
}

func openHistory(path string) (*repo.SQLiteRunStore, func(), error) {
	db, err := repo.OpenSQLite(path)
	if err != nil {
		return nil, nil, err
	}
	store, err := repo.NewSQLiteRunStore(db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}
	return store, func() { db.Close() }, nil
}

func saveHistory(ctx context.Context, path string, result *domain.ExecutionResult) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	store, closeDB, err := openHistory(path)
	if err != nil {
		return err
	}
	defer closeDB()
	return store.Save(context.WithoutCancel(ctx), result)
}

func mode(simulation bool) string {
	if simulation {
		return "simulation"
	}
	return "live"
}
