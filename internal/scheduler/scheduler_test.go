package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"

	"github.com/shaiso/Flowline/internal/domain"
)

type memSchedules struct {
	due       []domain.Schedule
	claimed   map[uuid.UUID]time.Time
	lost      map[uuid.UUID]bool
	listErr   error
	claimArgs []time.Time
}

func (m *memSchedules) ListDue(_ context.Context, now time.Time, limit int) ([]domain.Schedule, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []domain.Schedule
	for _, s := range m.due {
		if s.IsDue(now) && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSchedules) ClaimRun(_ context.Context, s *domain.Schedule, prevDue time.Time) (bool, error) {
	m.claimArgs = append(m.claimArgs, prevDue)
	if m.lost[s.ID] {
		return false, nil
	}
	if m.claimed == nil {
		m.claimed = make(map[uuid.UUID]time.Time)
	}
	m.claimed[s.ID] = *s.NextDueAt
	return true, nil
}

type memRuns struct {
	created []domain.ExecutionRequest
}

func (m *memRuns) CreateQueued(_ context.Context, req domain.ExecutionRequest) error {
	m.created = append(m.created, req)
	return nil
}

type memPublisher struct {
	published []domain.ExecutionRequest
	err       error
}

func (m *memPublisher) PublishExecutionRequested(_ context.Context, req domain.ExecutionRequest) error {
	if m.err != nil {
		return m.err
	}
	m.published = append(m.published, req)
	return nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func timePtr(t time.Time) *time.Time { return &t }

func newTestScheduler(store *memSchedules, runs *memRuns, pub *memPublisher, now time.Time) *Scheduler {
	s := New(Config{Schedules: store, Runs: runs, Publisher: pub, Logger: quietLogger()})
	s.now = func() time.Time { return now }
	return s
}

func TestTick_FiresDueSchedule(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 0, 30, 0, time.UTC)
	due := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	sched := domain.Schedule{
		ID:         uuid.New(),
		WorkflowID: uuid.New(),
		NodeID:     "cron",
		UserID:     "u1",
		CronExpr:   "0 9 * * *",
		Timezone:   "UTC",
		Enabled:    true,
		Simulation: true,
		NextDueAt:  timePtr(due),
	}

	store := &memSchedules{due: []domain.Schedule{sched}}
	runs := &memRuns{}
	pub := &memPublisher{}

	if err := newTestScheduler(store, runs, pub, now).Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	if len(pub.published) != 1 || len(runs.created) != 1 {
		t.Fatalf("published=%d created=%d, want 1/1", len(pub.published), len(runs.created))
	}
	req := pub.published[0]
	if req.WorkflowID != sched.WorkflowID || req.UserID != "u1" || !req.Simulation || req.Source != "schedule" {
		t.Errorf("unexpected request: %+v", req)
	}
	if runs.created[0].RunID != req.RunID {
		t.Error("queued run and published request must share the run id")
	}

	activation, ok := req.InitialData["cron"].(map[string]any)
	if !ok {
		t.Fatalf("missing activation for trigger node: %+v", req.InitialData)
	}
	if activation["triggered"] != true || activation["scheduledAt"] != "2025-03-10T09:00:00Z" {
		t.Errorf("unexpected activation: %+v", activation)
	}

	if !store.claimArgs[0].Equal(due) {
		t.Errorf("claim used prevDue %v, want %v", store.claimArgs[0], due)
	}
	wantNext := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	if got := store.claimed[sched.ID]; !got.Equal(wantNext) {
		t.Errorf("next due = %v, want %v", got, wantNext)
	}
}

func TestTick_LostClaimDoesNotEnqueue(t *testing.T) {
	now := time.Now()
	sched := domain.Schedule{
		ID: uuid.New(), NodeID: "cron", CronExpr: "* * * * *", Enabled: true,
		NextDueAt: timePtr(now.Add(-time.Second)),
	}
	store := &memSchedules{due: []domain.Schedule{sched}, lost: map[uuid.UUID]bool{sched.ID: true}}
	runs := &memRuns{}
	pub := &memPublisher{}

	if err := newTestScheduler(store, runs, pub, now).Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(runs.created) != 0 || len(pub.published) != 0 {
		t.Error("a schedule claimed by another replica must not be enqueued")
	}
}

func TestTick_SkipsNotDueAndDisabled(t *testing.T) {
	now := time.Now()
	store := &memSchedules{due: []domain.Schedule{
		{ID: uuid.New(), CronExpr: "* * * * *", Enabled: true, NextDueAt: timePtr(now.Add(time.Hour))},
		{ID: uuid.New(), CronExpr: "* * * * *", Enabled: false, NextDueAt: timePtr(now.Add(-time.Hour))},
	}}
	pub := &memPublisher{}

	if err := newTestScheduler(store, &memRuns{}, pub, now).Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(pub.published) != 0 {
		t.Errorf("published %d, want 0", len(pub.published))
	}
}

func TestTick_BadScheduleDoesNotBlockOthers(t *testing.T) {
	now := time.Now()
	store := &memSchedules{due: []domain.Schedule{
		{ID: uuid.New(), NodeID: "a", CronExpr: "not a cron", Enabled: true, NextDueAt: timePtr(now.Add(-time.Minute))},
		{ID: uuid.New(), NodeID: "b", CronExpr: "@hourly", Enabled: true, NextDueAt: timePtr(now.Add(-time.Minute))},
	}}
	pub := &memPublisher{}

	if err := newTestScheduler(store, &memRuns{}, pub, now).Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("published %d, want 1", len(pub.published))
	}
	if _, ok := pub.published[0].InitialData["b"]; !ok {
		t.Error("expected the valid schedule to fire")
	}
}

func TestTick_ListError(t *testing.T) {
	store := &memSchedules{listErr: errors.New("db down")}
	err := newTestScheduler(store, &memRuns{}, &memPublisher{}, time.Now()).Tick(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestCalculateNextDue(t *testing.T) {
	from := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		name    string
		expr    string
		tz      string
		want    time.Time
		wantErr bool
	}{
		{"every 5 minutes", "*/5 * * * *", "UTC", time.Date(2025, 6, 1, 12, 35, 0, 0, time.UTC), false},
		{"daily at 9 utc", "0 9 * * *", "", time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC), false},
		{"daily at 9 moscow", "0 9 * * *", "Europe/Moscow", time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC), false},
		{"descriptor", "@hourly", "UTC", time.Date(2025, 6, 1, 13, 0, 0, 0, time.UTC), false},
		{"bad cron", "61 * * * *", "UTC", time.Time{}, true},
		{"bad timezone", "* * * * *", "Mars/Olympus", time.Time{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CalculateNextDue(&domain.Schedule{CronExpr: tt.expr, Timezone: tt.tz}, from)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		sched   domain.Schedule
		wantErr bool
	}{
		{"ok", domain.Schedule{NodeID: "n", CronExpr: "0 * * * *", Timezone: "UTC"}, false},
		{"missing node", domain.Schedule{CronExpr: "0 * * * *"}, true},
		{"bad cron", domain.Schedule{NodeID: "n", CronExpr: "every day"}, true},
		{"bad tz", domain.Schedule{NodeID: "n", CronExpr: "0 * * * *", Timezone: "Nowhere"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := Validate(&tt.sched); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
