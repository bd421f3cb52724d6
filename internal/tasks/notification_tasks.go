package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"emi_billing_app/internal/models"
	"emi_billing_app/internal/services"
)

// SendNotificationArgs defines the arguments for a notification task
type SendNotificationArgs struct {
	UserIDs      []uint                 `json:"user_ids"`
	Kind         string                 `json:"kind"`
	Data         map[string]interface{} `json:"data"`
	AttemptCount int                    `json:"attempt_count"`
}

// SendNotificationTaskDef delivers a batch of notifications through the
// preference-aware notifier, retrying only the users that failed.
type SendNotificationTaskDef struct {
	notifier services.Notifier
}

// TaskID returns the unique identifier for this task
func (t *SendNotificationTaskDef) TaskID() string {
	return "send_notification"
}

// CreateTask builds a ScheduledTask record for this task
func (t *SendNotificationTaskDef) CreateTask(args SendNotificationArgs) (*models.ScheduledTask, error) {
	return BuildScheduledTask(t.TaskID(), args, time.Now(), nil, models.ScheduledTaskTypeOneTime, 3)
}

// HandleExecution sends one notification per user. Partial failures are
// rescheduled as a new one-time task carrying only the failed users, up
// to the task's attempt budget.
func (t *SendNotificationTaskDef) HandleExecution(ctx context.Context, db *gorm.DB, task models.ScheduledTask) (map[string]interface{}, error) {
	argsBytes, err := json.Marshal(task.Arguments)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal args: %w", err)
	}

	var parsedArgs SendNotificationArgs
	if err := json.Unmarshal(argsBytes, &parsedArgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal args: %w", err)
	}

	kind := services.NotificationKind(parsedArgs.Kind)
	total := len(parsedArgs.UserIDs)
	successCount := 0
	var failures []string
	var failedUsers []uint

	for _, userID := range parsedArgs.UserIDs {
		if err := t.notifier.Send(ctx, userID, kind, parsedArgs.Data); err != nil {
			log.Printf("Failed to send %s notification to user %d: %v", kind, userID, err)
			failures = append(failures, fmt.Sprintf("user %d: %v", userID, err))
			failedUsers = append(failedUsers, userID)
		} else {
			successCount++
		}
	}

	result := map[string]interface{}{
		"total":   total,
		"success": successCount,
		"failure": len(failedUsers),
	}

	if len(failedUsers) > 0 {
		result["errors"] = failures

		attempt := parsedArgs.AttemptCount
		maxRetries := task.MaxAttempt

		if attempt < maxRetries {
			log.Printf("Partial failure: %d users failed. Rescheduling for attempt %d", len(failedUsers), attempt+1)

			newArgs := parsedArgs
			newArgs.UserIDs = failedUsers
			newArgs.AttemptCount = attempt + 1

			// Re-schedule in 5 minutes
			nextRun := time.Now().Add(5 * time.Minute)

			newTask, err := BuildScheduledTask(t.TaskID(), newArgs, nextRun, nil, models.ScheduledTaskTypeOneTime, maxRetries)
			if err == nil {
				db.Create(newTask)
			} else {
				log.Printf("Failed to create retry task: %v", err)
			}
		} else {
			log.Printf("Max attempts (%d) reached for %d failed users.", maxRetries, len(failedUsers))
			return result, fmt.Errorf("max attempts reached, failed to deliver to %d users", len(failedUsers))
		}
	}

	return result, nil
}
