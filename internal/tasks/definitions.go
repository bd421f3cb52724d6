package tasks

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"emi_billing_app/internal/models"
	"emi_billing_app/internal/services"
)

// Deps bundles the services task handlers need
type Deps struct {
	EMI      *services.EmiService
	Cache    *services.RedisCache
	Notifier services.Notifier
}

// DefineTasks registers all available tasks
func DefineTasks(deps Deps) {
	// Register general tasks
	RegisterHandler(LogInfoTask.TaskID(), LogInfoTask.HandleExecution)

	// Register EMI lifecycle tasks
	sweep := &ProcessOverdueEmisTaskDef{emi: deps.EMI, cache: deps.Cache}
	RegisterHandler(sweep.TaskID(), sweep.HandleExecution)

	reminders := &SendPaymentRemindersTaskDef{emi: deps.EMI}
	RegisterHandler(reminders.TaskID(), reminders.HandleExecution)

	repair := &FixEmiInconsistenciesTaskDef{emi: deps.EMI}
	RegisterHandler(repair.TaskID(), repair.HandleExecution)

	// Register notification tasks
	notify := &SendNotificationTaskDef{notifier: deps.Notifier}
	RegisterHandler(notify.TaskID(), notify.HandleExecution)
}

// dailyAt returns an RFC 5545 recurrence rule for one run per day
func dailyAt(hour, minute int) string {
	return fmt.Sprintf("FREQ=DAILY;BYHOUR=%d;BYMINUTE=%d;BYSECOND=0", hour, minute)
}

// EnsureDefaultTasks seeds the recurring billing tasks if they are not
// already scheduled. Safe to call on every worker start.
func EnsureDefaultTasks(db *gorm.DB) error {
	defaults := []struct {
		name     string
		interval string
	}{
		{"process_overdue_emis", dailyAt(1, 0)},
		{"send_payment_reminders", dailyAt(9, 0)},
		{"fix_emi_inconsistencies", dailyAt(2, 0)},
	}

	for _, def := range defaults {
		var count int64
		err := db.Model(&models.ScheduledTask{}).
			Where("task_name = ? AND task_type = ? AND status = ?",
				def.name, models.ScheduledTaskTypeRecurring, models.ScheduledTaskStatusActive).
			Count(&count).Error
		if err != nil {
			return fmt.Errorf("failed to check task %s: %w", def.name, err)
		}
		if count > 0 {
			continue
		}

		interval := def.interval
		task, err := BuildScheduledTask(def.name, map[string]interface{}{}, time.Now(), &interval, models.ScheduledTaskTypeRecurring, 3)
		if err != nil {
			return fmt.Errorf("failed to build task %s: %w", def.name, err)
		}
		if err := db.Create(task).Error; err != nil {
			return fmt.Errorf("failed to seed task %s: %w", def.name, err)
		}
		log.Printf("Seeded recurring task %s (%s)", def.name, interval)
	}

	return nil
}
