// Package scheduler запускает workflow по cron-расписанию.
//
// Schedule привязан к узлу scheduleTrigger. На каждом тике Scheduler
// находит schedules с истёкшим next_due_at, сдвигает next_due_at на
// следующее время по cron и ставит выполнение в очередь с активацией
// {triggered, scheduledAt, scheduleId} для этого узла.
//
//	sched := scheduler.New(scheduler.Config{
//	    Schedules: scheduleRepo,
//	    Runs:      runRepo,
//	    Publisher: publisher,
//	    Logger:    logger,
//	})
//	_ = sched.Run(ctx, time.Second)
//
// Несколько реплик безопасны: ScheduleRepo.ClaimRun сравнивает
// next_due_at, поэтому срабатывание забирает одна реплика.
package scheduler
