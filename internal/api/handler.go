package api

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/domain"
	"github.com/shaiso/Flowline/internal/engine"
	"github.com/shaiso/Flowline/internal/orchestrator"
	"github.com/shaiso/Flowline/internal/repo"
	"github.com/shaiso/Flowline/internal/runlog"
	"github.com/shaiso/Flowline/internal/telemetry"
)

// WorkflowStore — хранилище workflow. Реализуется repo.WorkflowRepo.
type WorkflowStore interface {
	Create(ctx context.Context, wf *domain.Workflow) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Workflow, error)
	List(ctx context.Context, filter repo.WorkflowFilter) ([]domain.Workflow, error)
	Update(ctx context.Context, wf *domain.Workflow) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// RunStore — хранилище run. Реализуется repo.RunRepo.
type RunStore interface {
	CreateQueued(ctx context.Context, req domain.ExecutionRequest) error
	Save(ctx context.Context, run *domain.ExecutionResult) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.ExecutionResult, error)
	List(ctx context.Context, filter repo.RunFilter) ([]domain.ExecutionResult, error)
}

// ScheduleStore — хранилище schedules. Реализуется repo.ScheduleRepo.
type ScheduleStore interface {
	Create(ctx context.Context, s *domain.Schedule) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Schedule, error)
	List(ctx context.Context, filter repo.ScheduleFilter) ([]domain.Schedule, error)
	Update(ctx context.Context, s *domain.Schedule) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CredentialStore — зашифрованные секреты пользователей. Реализуется repo.CredentialRepo.
type CredentialStore interface {
	Put(ctx context.Context, userID, name, value string) error
	ListNames(ctx context.Context, userID string) ([]string, error)
	Delete(ctx context.Context, userID, name string) error
}

// Executor выполняет workflow синхронно. Реализуется orchestrator.Engine.
type Executor interface {
	Execute(ctx context.Context, wf *domain.Workflow, opts orchestrator.ExecuteOptions) (*domain.ExecutionResult, error)
}

// RequestPublisher ставит выполнение в очередь. Реализуется mq.Publisher.
type RequestPublisher interface {
	PublishExecutionRequested(ctx context.Context, req domain.ExecutionRequest) error
}

// LiveLog читает живой хвост лога run. Реализуется runlog.Store.
type LiveLog interface {
	Read(ctx context.Context, runID uuid.UUID, from int64) (*runlog.Tail, error)
}

// LiveSink пишет живой лог синхронного run.
type LiveSink interface {
	engine.LogSink
	Close(ctx context.Context) error
}

// Handler — главный обработчик API с зависимостями.
type Handler struct {
	workflows   WorkflowStore
	runs        RunStore
	schedules   ScheduleStore
	credentials CredentialStore
	executor    Executor
	nodeTypes   engine.NodeTypeSet
	publisher   RequestPublisher
	liveLog     LiveLog
	openLog     func(runID uuid.UUID) LiveSink
	metrics     *telemetry.Metrics
	logger      *slog.Logger
	saveTimeout time.Duration
	now         func() time.Time
}

// Config — конфигурация для создания Handler.
//
// Credentials, Publisher, LiveLog, OpenLog и Metrics опциональны: без Publisher
// асинхронные запуски отвечают 503, без LiveLog лог отдаётся только
// из сохранённого run.
type Config struct {
	Workflows   WorkflowStore
	Runs        RunStore
	Schedules   ScheduleStore
	Credentials CredentialStore
	Executor    Executor
	NodeTypes   engine.NodeTypeSet
	Publisher   RequestPublisher
	LiveLog     LiveLog
	OpenLog     func(runID uuid.UUID) LiveSink
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		workflows:   cfg.Workflows,
		runs:        cfg.Runs,
		schedules:   cfg.Schedules,
		credentials: cfg.Credentials,
		executor:    cfg.Executor,
		nodeTypes:   cfg.NodeTypes,
		publisher:   cfg.Publisher,
		liveLog:     cfg.LiveLog,
		openLog:     cfg.OpenLog,
		metrics:     cfg.Metrics,
		logger:      logger,
		saveTimeout: 10 * time.Second,
		now:         time.Now,
	}
}
