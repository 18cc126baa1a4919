package domain

import (
	"time"

	"github.com/google/uuid"
)

// Schedule — расписание, активирующее узел scheduleTrigger.
//
// Scheduler проверяет next_due_at и ставит выполнение в очередь,
// передавая активацию {triggered, scheduledAt} для NodeID.
type Schedule struct {
	// ID — уникальный идентификатор schedule.
	ID uuid.UUID `json:"id"`

	// WorkflowID — какой workflow запускать.
	WorkflowID uuid.UUID `json:"workflowId"`

	// NodeID — ID узла scheduleTrigger, который активируется.
	NodeID string `json:"nodeId"`

	// UserID — от чьего имени выполняется run.
	UserID string `json:"userId"`

	// CronExpr — cron-выражение.
	// Формат: "минуты часы дни месяцы дни_недели"
	//   "0 9 * * *"     — каждый день в 9:00
	//   "*/5 * * * *"   — каждые 5 минут
	CronExpr string `json:"cronExpr"`

	// Timezone — часовой пояс для вычисления времени. По умолчанию "UTC".
	Timezone string `json:"timezone"`

	// Enabled — флаг активности.
	Enabled bool `json:"enabled"`

	// Simulation — запускать в режиме симуляции.
	Simulation bool `json:"simulation,omitempty"`

	// NextDueAt — время следующего запуска.
	NextDueAt *time.Time `json:"nextDueAt,omitempty"`

	// LastRunAt — время последнего запуска.
	LastRunAt *time.Time `json:"lastRunAt,omitempty"`

	// LastRunID — ID последнего поставленного в очередь run.
	LastRunID *uuid.UUID `json:"lastRunId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IsDue проверяет, пора ли запускать.
func (s *Schedule) IsDue(now time.Time) bool {
	if !s.Enabled || s.NextDueAt == nil {
		return false
	}
	return !now.Before(*s.NextDueAt)
}

// RecordRun записывает информацию о запуске.
func (s *Schedule) RecordRun(runID uuid.UUID, nextDue time.Time) {
	now := time.Now()
	s.LastRunAt = &now
	s.LastRunID = &runID
	s.NextDueAt = &nextDue
	s.UpdatedAt = now
}

// Activation возвращает данные активации узла-триггера для запуска в момент at.
func (s *Schedule) Activation(at time.Time) map[string]any {
	return map[string]any{
		s.NodeID: map[string]any{
			"triggered":   true,
			"scheduledAt": at.UTC().Format(time.RFC3339),
			"scheduleId":  s.ID.String(),
		},
	}
}
