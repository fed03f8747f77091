package nats

import (
	"time"

	"github.com/brojonat/zcashrpc/service/zcash"
)

// ShieldedTransactionEvent represents a received shielded note published to NATS.
// This is published to the subject "ztxns.{address}" in JetStream.
type ShieldedTransactionEvent struct {
	// Transaction identifiers. NoteID tells apart notes of one transaction
	// paid to the same address.
	TxID   string `json:"txid"`
	NoteID string `json:"note_id"`

	// Receiving shielded address
	Address string `json:"address"`
	Network string `json:"network"`

	// Note details
	Amount float32 `json:"amount"`
	Memo   string  `json:"memo,omitempty"`

	// Timing information
	ObservedAt  time.Time `json:"observed_at"`
	PublishedAt time.Time `json:"published_at"`
}

// FromZTransaction converts a decoded shielded transaction to an event for publishing.
func FromZTransaction(address, network string, txn zcash.ZTransaction, observedAt time.Time) *ShieldedTransactionEvent {
	return &ShieldedTransactionEvent{
		TxID:        txn.TxID,
		NoteID:      txn.NoteID(),
		Address:     address,
		Network:     network,
		Amount:      txn.Amount,
		Memo:        txn.Memo,
		ObservedAt:  observedAt.UTC(),
		PublishedAt: time.Now().UTC(),
	}
}

// Subject returns the JetStream subject for events received by address.
func Subject(address string) string {
	return SubjectPrefix + address
}

// MessageID is the JetStream deduplication id of the event: the receiving
// address and the note id.
func (e *ShieldedTransactionEvent) MessageID() string {
	return e.Address + ":" + e.NoteID
}
