package temporal

import (
	"context"
	"time"
)

// Scheduler manages the Temporal schedule that polls a network's wallet.
// Each network gets its own schedule that triggers the PollShieldedWorkflow.
type Scheduler interface {
	// UpsertPollSchedule creates the schedule for network, or updates its
	// addresses and interval when it already exists.
	UpsertPollSchedule(ctx context.Context, network string, addresses []string, interval time.Duration) error

	// DeletePollSchedule deletes the schedule for network.
	DeletePollSchedule(ctx context.Context, network string) error
}

// scheduleID returns the Temporal schedule ID for a network.
func scheduleID(network string) string {
	return "poll-shielded-" + network
}

// workflowID returns the ID of the workflow runs started by a network's schedule.
func workflowID(network string) string {
	return "poll-shielded-workflow-" + network
}
