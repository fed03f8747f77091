package temporal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/brojonat/zcashrpc/service/db"
	"github.com/brojonat/zcashrpc/service/metrics"
	natspkg "github.com/brojonat/zcashrpc/service/nats"
	"github.com/brojonat/zcashrpc/service/zcash"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// PollShieldedInput contains the input parameters of a poll workflow run.
type PollShieldedInput struct {
	Network string `json:"network"`
	// Addresses to poll. When empty the wallet's addresses are listed on
	// every run, so new addresses are picked up without a schedule change.
	Addresses []string `json:"addresses,omitempty"`
}

// PollShieldedResult contains the result of a poll workflow run.
type PollShieldedResult struct {
	Network    string    `json:"network"`
	Addresses  int       `json:"addresses"`
	NoteCount  int       `json:"note_count"`
	Duplicates int       `json:"duplicates"`
	Published  int       `json:"published"`
	PollTime   time.Time `json:"poll_time"`
	Error      *string   `json:"error,omitempty"`
}

// Note is a shielded note together with the address that received it.
type Note struct {
	Address     string             `json:"address"`
	Transaction zcash.ZTransaction `json:"transaction"`
}

// Key returns the note's identity in the published notes store.
func (n Note) Key() db.NoteKey {
	return db.NoteKey{Address: n.Address, NoteID: n.Transaction.NoteID()}
}

// ResolveAddressesInput contains parameters for the ResolveAddresses activity.
type ResolveAddressesInput struct {
	Addresses []string `json:"addresses,omitempty"`
}

// ResolveAddressesResult contains the addresses to poll.
type ResolveAddressesResult struct {
	Addresses []string `json:"addresses"`
}

// FetchNotesInput contains parameters for the FetchNotes activity.
type FetchNotesInput struct {
	Network   string   `json:"network"`
	Addresses []string `json:"addresses"`
}

// FetchNotesResult contains every note received by the polled addresses,
// grouped by address in input order.
type FetchNotesResult struct {
	Notes []Note `json:"notes"`
}

// FilterPublishedNotesInput contains parameters for the FilterPublishedNotes activity.
type FilterPublishedNotesInput struct {
	Network string `json:"network"`
	Notes   []Note `json:"notes"`
}

// FilterPublishedNotesResult contains the notes that still need publishing.
type FilterPublishedNotesResult struct {
	Unpublished []Note `json:"unpublished"`
	Duplicates  int    `json:"duplicates"`
}

// PublishNotesInput contains parameters for the PublishNotes activity.
type PublishNotesInput struct {
	Network    string    `json:"network"`
	Notes      []Note    `json:"notes"`
	ObservedAt time.Time `json:"observed_at"`
}

// PublishNotesResult contains the result of publishing notes.
type PublishNotesResult struct {
	Published int   `json:"published"`
	Recorded  int64 `json:"recorded"`
}

// StoreInterface defines the database operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	ExistingNotes(ctx context.Context, network string, keys []db.NoteKey) ([]db.NoteKey, error)
	RecordPublishedNotes(ctx context.Context, notes []db.PublishedNote) (int64, error)
}

// NoteSource fetches shielded notes per address. *zcash.Aggregator implements it.
type NoteSource interface {
	ZTransactionsByAddress(ctx context.Context, addresses []string) ([][]zcash.ZTransaction, error)
}

// AddressLister resolves the wallet's shielded addresses. *zcash.Client implements it.
type AddressLister interface {
	ListShieldedAddresses(ctx context.Context) ([]string, error)
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	store     StoreInterface
	source    NoteSource
	lister    AddressLister
	publisher natspkg.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// If metrics is nil, no metrics will be recorded.
func NewActivities(
	store StoreInterface,
	source NoteSource,
	lister AddressLister,
	publisher natspkg.Publisher,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		store:     store,
		source:    source,
		lister:    lister,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

func (a *Activities) recordDuration(activity string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordActivityDuration(activity, time.Since(start).Seconds())
	}
}

// ResolveAddresses returns the configured addresses, or every shielded
// address of the wallet when none are configured.
func (a *Activities) ResolveAddresses(ctx context.Context, input ResolveAddressesInput) (*ResolveAddressesResult, error) {
	defer a.recordDuration("ResolveAddresses", time.Now())

	if len(input.Addresses) > 0 {
		return &ResolveAddressesResult{Addresses: input.Addresses}, nil
	}
	if a.lister == nil {
		return nil, temporalsdk.NewNonRetryableApplicationError("no addresses configured and no address lister", "config", nil)
	}

	addresses, err := a.lister.ListShieldedAddresses(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to list shielded addresses", "error", err)
		return nil, nodeError("failed to list shielded addresses", err)
	}

	a.logger.DebugContext(ctx, "resolved wallet addresses", "count", len(addresses))
	return &ResolveAddressesResult{Addresses: addresses}, nil
}

// FetchNotes lists the notes received by every address through the aggregator.
// One failing address fails the activity; no partial result is returned.
func (a *Activities) FetchNotes(ctx context.Context, input FetchNotesInput) (*FetchNotesResult, error) {
	defer a.recordDuration("FetchNotes", time.Now())

	groups, err := a.source.ZTransactionsByAddress(ctx, input.Addresses)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to fetch shielded notes",
			"network", input.Network,
			"addresses", len(input.Addresses),
			"kind", zcash.KindOf(err),
			"error", err,
		)
		return nil, nodeError("failed to fetch shielded notes", err)
	}

	var notes []Note
	for i, txns := range groups {
		for _, txn := range txns {
			notes = append(notes, Note{Address: input.Addresses[i], Transaction: txn})
		}
	}

	a.logger.InfoContext(ctx, "fetched shielded notes",
		"network", input.Network,
		"addresses", len(input.Addresses),
		"count", len(notes),
	)
	return &FetchNotesResult{Notes: notes}, nil
}

// FilterPublishedNotes drops the notes already recorded as published.
func (a *Activities) FilterPublishedNotes(ctx context.Context, input FilterPublishedNotesInput) (*FilterPublishedNotesResult, error) {
	defer a.recordDuration("FilterPublishedNotes", time.Now())

	keys := make([]db.NoteKey, len(input.Notes))
	for i, n := range input.Notes {
		keys[i] = n.Key()
	}

	start := time.Now()
	existing, err := a.store.ExistingNotes(ctx, input.Network, keys)
	if a.metrics != nil {
		a.metrics.RecordDBQuery("existing_notes", "published_notes", time.Since(start).Seconds(), err)
	}
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to look up published notes", "error", err)
		return nil, fmt.Errorf("failed to look up published notes: %w", err)
	}

	seen := make(map[db.NoteKey]struct{}, len(existing))
	for _, k := range existing {
		seen[k] = struct{}{}
	}

	result := &FilterPublishedNotesResult{}
	for i, n := range input.Notes {
		if _, ok := seen[keys[i]]; ok {
			result.Duplicates++
			continue
		}
		// A note listed twice in one poll is published once.
		seen[keys[i]] = struct{}{}
		result.Unpublished = append(result.Unpublished, n)
	}

	if a.metrics != nil {
		a.metrics.RecordWatcherTransactions("new", len(result.Unpublished))
		a.metrics.RecordWatcherTransactions("duplicate", result.Duplicates)
	}

	a.logger.DebugContext(ctx, "filtered published notes",
		"network", input.Network,
		"new", len(result.Unpublished),
		"duplicates", result.Duplicates,
	)
	return result, nil
}

// PublishNotes publishes notes to NATS in order and records the published
// ones in the store. Notes published before a failure are still recorded, so
// a retry only publishes the remainder.
func (a *Activities) PublishNotes(ctx context.Context, input PublishNotesInput) (*PublishNotesResult, error) {
	defer a.recordDuration("PublishNotes", time.Now())

	if len(input.Notes) == 0 {
		return &PublishNotesResult{}, nil
	}

	events := make([]*natspkg.ShieldedTransactionEvent, len(input.Notes))
	for i, n := range input.Notes {
		events[i] = natspkg.FromZTransaction(n.Address, input.Network, n.Transaction, input.ObservedAt)
	}

	published, publishErr := a.publisher.PublishShieldedTransactionBatch(ctx, events)
	published = min(published, len(events))

	records := make([]db.PublishedNote, published)
	for i, event := range events[:published] {
		records[i] = db.PublishedNote{
			Network:     input.Network,
			Address:     event.Address,
			NoteID:      event.NoteID,
			TxID:        event.TxID,
			Amount:      event.Amount,
			Memo:        event.Memo,
			PublishedAt: event.PublishedAt,
		}
	}

	start := time.Now()
	recorded, recordErr := a.store.RecordPublishedNotes(ctx, records)
	if a.metrics != nil && len(records) > 0 {
		a.metrics.RecordDBQuery("record_notes", "published_notes", time.Since(start).Seconds(), recordErr)
	}

	result := &PublishNotesResult{Published: published, Recorded: recorded}
	if err := errors.Join(publishErr, recordErr); err != nil {
		a.logger.ErrorContext(ctx, "failed to publish shielded notes",
			"network", input.Network,
			"published", published,
			"recorded", recorded,
			"total", len(events),
			"error", err,
		)
		return result, fmt.Errorf("published %d of %d notes: %w", published, len(events), err)
	}

	a.logger.InfoContext(ctx, "published shielded notes",
		"network", input.Network,
		"published", published,
		"recorded", recorded,
	)
	return result, nil
}

// nodeError marks node answers that a retry cannot fix as non-retryable.
func nodeError(msg string, err error) error {
	switch zcash.KindOf(err) {
	case zcash.KindMemo, zcash.KindSchema:
		return temporalsdk.NewNonRetryableApplicationError(msg, string(zcash.KindOf(err)), err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
