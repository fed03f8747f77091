package temporal

import (
	"fmt"
	"time"

	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// PollShieldedWorkflow polls the wallet's shielded addresses and publishes
// every note that has not been published before. It is triggered by a
// Temporal schedule at the configured interval.
//
// The workflow performs these steps:
// 1. Resolve the addresses to poll (ResolveAddresses activity)
// 2. Fetch all received notes through the aggregator (FetchNotes activity)
// 3. Drop notes recorded as published (FilterPublishedNotes activity)
// 4. Publish the rest to NATS and record them (PublishNotes activity)
//
// Every step only reads from zcashd; payments are never sent from here.
func PollShieldedWorkflow(ctx workflow.Context, input PollShieldedInput) (*PollShieldedResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("PollShieldedWorkflow started", "network", input.Network)

	result := &PollShieldedResult{
		Network:  input.Network,
		PollTime: workflow.Now(ctx),
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 300 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	fail := func(step string, err error) (*PollShieldedResult, error) {
		errMsg := fmt.Sprintf("failed to %s: %v", step, err)
		result.Error = &errMsg
		logger.Error("PollShieldedWorkflow failed", "step", step, "error", err)
		return result, fmt.Errorf("failed to %s: %w", step, err)
	}

	// Step 1: Resolve addresses
	var resolved *ResolveAddressesResult
	err := workflow.ExecuteActivity(ctx, a.ResolveAddresses, ResolveAddressesInput{Addresses: input.Addresses}).Get(ctx, &resolved)
	if err != nil {
		return fail("resolve addresses", err)
	}
	result.Addresses = len(resolved.Addresses)
	if len(resolved.Addresses) == 0 {
		logger.Info("no shielded addresses to poll")
		return result, nil
	}

	// Step 2: Fetch notes
	var fetched *FetchNotesResult
	err = workflow.ExecuteActivity(ctx, a.FetchNotes, FetchNotesInput{
		Network:   input.Network,
		Addresses: resolved.Addresses,
	}).Get(ctx, &fetched)
	if err != nil {
		return fail("fetch notes", err)
	}
	result.NoteCount = len(fetched.Notes)
	if len(fetched.Notes) == 0 {
		logger.Info("no shielded notes found", "addresses", result.Addresses)
		return result, nil
	}

	// Step 3: Drop notes that were already published
	var filtered *FilterPublishedNotesResult
	err = workflow.ExecuteActivity(ctx, a.FilterPublishedNotes, FilterPublishedNotesInput{
		Network: input.Network,
		Notes:   fetched.Notes,
	}).Get(ctx, &filtered)
	if err != nil {
		return fail("filter published notes", err)
	}
	result.Duplicates = filtered.Duplicates
	if len(filtered.Unpublished) == 0 {
		logger.Info("no new shielded notes", "duplicates", result.Duplicates)
		return result, nil
	}

	// Step 4: Publish and record
	var published *PublishNotesResult
	err = workflow.ExecuteActivity(ctx, a.PublishNotes, PublishNotesInput{
		Network:    input.Network,
		Notes:      filtered.Unpublished,
		ObservedAt: result.PollTime,
	}).Get(ctx, &published)
	if err != nil {
		return fail("publish notes", err)
	}
	result.Published = published.Published

	logger.Info("PollShieldedWorkflow completed successfully",
		"network", input.Network,
		"addresses", result.Addresses,
		"notes", result.NoteCount,
		"duplicates", result.Duplicates,
		"published", result.Published,
	)
	return result, nil
}
