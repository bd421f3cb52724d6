package tasks

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"emi_billing_app/internal/models"
	"emi_billing_app/internal/services"
)

// sweepLockKey guards the overdue sweep against concurrent worker replicas
const sweepLockKey = "emi:sweep:lock"

const sweepLockTTL = 10 * time.Minute

// ProcessOverdueEmisTaskDef runs the daily overdue sweep
type ProcessOverdueEmisTaskDef struct {
	emi   *services.EmiService
	cache *services.RedisCache
}

// TaskID returns the unique identifier for this task
func (t *ProcessOverdueEmisTaskDef) TaskID() string {
	return "process_overdue_emis"
}

// HandleExecution advances every active or locked plan. When a Redis
// cache is configured, an advisory lock ensures only one worker replica
// sweeps at a time; losing the lock race is a skip, not a failure.
func (t *ProcessOverdueEmisTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	if t.cache != nil {
		acquired, err := t.cache.SetNX(ctx, sweepLockKey, time.Now().Unix(), sweepLockTTL)
		if err != nil {
			log.Printf("Sweep lock check failed, proceeding without lock: %v", err)
		} else if !acquired {
			return map[string]interface{}{"status": "skipped", "message": "sweep already running elsewhere"}, nil
		} else {
			defer func() {
				if err := t.cache.Delete(ctx, sweepLockKey); err != nil {
					log.Printf("Failed to release sweep lock: %v", err)
				}
			}()
		}
	}

	result, err := t.emi.ProcessOverdueEmis(ctx, time.Now())
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"status":      "success",
		"processed":   result.Processed,
		"marked_late": result.MarkedLate,
		"locked":      result.Locked,
		"unlocked":    result.Unlocked,
		"errors":      result.Errors,
	}, nil
}

// SendPaymentRemindersTaskDef notifies learners with installments coming due
type SendPaymentRemindersTaskDef struct {
	emi *services.EmiService
}

// TaskID returns the unique identifier for this task
func (t *SendPaymentRemindersTaskDef) TaskID() string {
	return "send_payment_reminders"
}

// HandleExecution sends reminders for pending installments inside the
// reminder window.
func (t *SendPaymentRemindersTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	reminded, err := t.emi.SendPaymentReminders(ctx, time.Now())
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"status":   "success",
		"reminded": reminded,
	}, nil
}

// FixEmiInconsistenciesTaskDef repairs drift between plans and enrollments
type FixEmiInconsistenciesTaskDef struct {
	emi *services.EmiService
}

// TaskID returns the unique identifier for this task
func (t *FixEmiInconsistenciesTaskDef) TaskID() string {
	return "fix_emi_inconsistencies"
}

// HandleExecution recomputes every active or locked plan's status from its
// installments and corrects plan and enrollment rows that drifted, for
// example after a partial failure during reconciliation.
func (t *FixEmiInconsistenciesTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	result, err := t.emi.FixAllEmiInconsistencies(ctx, time.Now())
	if err != nil {
		return nil, err
	}

	return map[string]interface{}{
		"status": "success",
		"total":  result.Total,
		"fixed":  result.Fixed,
		"errors": result.Errors,
	}, nil
}
