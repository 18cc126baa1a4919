package scheduler

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Flowline/internal/domain"
)

// cronParser — стандартный пятипольный cron плюс дескрипторы (@hourly, @every 5m).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// CalculateNextDue вычисляет следующее время запуска после from.
// Cron вычисляется в часовом поясе schedule, результат — в UTC.
func CalculateNextDue(sched *domain.Schedule, from time.Time) (time.Time, error) {
	loc, err := LoadLocation(sched.Timezone)
	if err != nil {
		return time.Time{}, err
	}

	spec, err := cronParser.Parse(sched.CronExpr)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse cron expression %q: %w", sched.CronExpr, err)
	}
	return spec.Next(from.In(loc)).UTC(), nil
}

// LoadLocation возвращает часовой пояс; пустая строка — UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", name, err)
	}
	return loc, nil
}

// Validate проверяет cron-выражение и часовой пояс schedule.
func Validate(sched *domain.Schedule) error {
	if sched.NodeID == "" {
		return fmt.Errorf("schedule node id is required")
	}
	if _, err := cronParser.Parse(sched.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", sched.CronExpr, err)
	}
	if _, err := LoadLocation(sched.Timezone); err != nil {
		return err
	}
	return nil
}
