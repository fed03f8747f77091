package zcash

import (
	"context"
	"io"
	"log/slog"

	"github.com/brojonat/zcashrpc/service/metrics"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// ShieldedNode is the subset of Client operations the Aggregator fans out.
// This allows us to mock the node in tests without running zcashd.
type ShieldedNode interface {
	ListShieldedAddresses(ctx context.Context) ([]string, error)
	GetShieldedBalance(ctx context.Context, address string) (string, error)
	ListReceivedByShieldedAddress(ctx context.Context, address string) ([]ZTransaction, error)
}

// Aggregator runs one node call per address concurrently and merges the results.
// All operations are all-or-nothing: the first failing call cancels the
// others and no partial result is returned.
type Aggregator struct {
	node           ShieldedNode
	metrics        *metrics.Metrics
	logger         *slog.Logger
	maxConcurrency int
}

// NewAggregator creates an Aggregator over node.
// maxConcurrency bounds the number of in-flight calls; zero or less means one call per address at once.
// If metrics is nil, no metrics will be recorded.
func NewAggregator(node ShieldedNode, m *metrics.Metrics, logger *slog.Logger, maxConcurrency int) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Aggregator{
		node:           node,
		metrics:        m,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// ZTransactions returns every shielded note received by addresses as one
// slice: grouped by address in the order given, each group in node order.
func (a *Aggregator) ZTransactions(ctx context.Context, addresses []string) ([]ZTransaction, error) {
	groups, err := a.ZTransactionsByAddress(ctx, addresses)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, g := range groups {
		total += len(g)
	}
	merged := make([]ZTransaction, 0, total)
	for _, g := range groups {
		merged = append(merged, g...)
	}
	return merged, nil
}

// ZTransactionsByAddress is ZTransactions without the final merge:
// result[i] holds the notes received by addresses[i].
func (a *Aggregator) ZTransactionsByAddress(ctx context.Context, addresses []string) ([][]ZTransaction, error) {
	if a.metrics != nil {
		a.metrics.RecordAggregateAddresses(MethodListReceivedByAddress, len(addresses))
	}

	results := make([][]ZTransaction, len(addresses))
	err := a.fanOut(ctx, addresses, func(ctx context.Context, i int, address string) error {
		txns, err := a.node.ListReceivedByShieldedAddress(ctx, address)
		if err != nil {
			return err
		}
		results[i] = txns
		return nil
	})
	if err != nil {
		a.logger.WarnContext(ctx, "shielded transaction aggregate failed",
			"addresses", len(addresses),
			"error", err,
		)
		return nil, err
	}

	a.logger.DebugContext(ctx, "aggregated shielded transactions", "addresses", len(addresses))
	return results, nil
}

// AddressWithAmount returns the first wallet address, in z_listaddresses
// order, whose shielded balance is at least amount. It returns
// ErrNoAddressWithAmount when none qualifies.
func (a *Aggregator) AddressWithAmount(ctx context.Context, amount decimal.Decimal) (string, error) {
	addresses, err := a.node.ListShieldedAddresses(ctx)
	if err != nil {
		return "", err
	}
	if a.metrics != nil {
		a.metrics.RecordAggregateAddresses(MethodGetBalance, len(addresses))
	}

	balances := make([]decimal.Decimal, len(addresses))
	err = a.fanOut(ctx, addresses, func(ctx context.Context, i int, address string) error {
		raw, err := a.node.GetShieldedBalance(ctx, address)
		if err != nil {
			return err
		}
		balance, err := decimal.NewFromString(raw)
		if err != nil {
			return &Error{Kind: KindSchema, Method: MethodGetBalance, Err: err}
		}
		balances[i] = balance
		return nil
	})
	if err != nil {
		return "", err
	}

	for i, balance := range balances {
		if balance.GreaterThanOrEqual(amount) {
			return addresses[i], nil
		}
	}
	return "", ErrNoAddressWithAmount
}

// fanOut runs fn once per address and waits for all of them. Each call
// writes only its own index, so no locking is needed. The first error
// cancels the shared context and is returned as an *AggregateError.
func (a *Aggregator) fanOut(ctx context.Context, addresses []string, fn func(ctx context.Context, i int, address string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	if a.maxConcurrency > 0 {
		g.SetLimit(a.maxConcurrency)
	}

	for i, address := range addresses {
		g.Go(func() error {
			if err := fn(gctx, i, address); err != nil {
				return &AggregateError{Index: i, Address: address, Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}
