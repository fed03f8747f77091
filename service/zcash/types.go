package zcash

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// BlockchainInfo is the subset of getblockchaininfo we expose.
type BlockchainInfo struct {
	Chain      string  `json:"chain"`
	Blocks     uint32  `json:"blocks"`
	Difficulty float64 `json:"difficulty"`
}

// Balance is the result of z_gettotalbalance.
// Amounts are kept as the decimal strings the node sends to avoid float rounding.
type Balance struct {
	Transparent string `json:"transparent"`
	Private     string `json:"private"`
	Total       string `json:"total"`
}

// TransparentDecimal parses the transparent balance.
func (b Balance) TransparentDecimal() (decimal.Decimal, error) {
	return parseAmount("transparent", b.Transparent)
}

// PrivateDecimal parses the shielded balance.
func (b Balance) PrivateDecimal() (decimal.Decimal, error) {
	return parseAmount("private", b.Private)
}

// TotalDecimal parses the total balance.
func (b Balance) TotalDecimal() (decimal.Decimal, error) {
	return parseAmount("total", b.Total)
}

func parseAmount(field, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s amount %q: %w", field, value, err)
	}
	return d, nil
}

// Transaction is one entry of the transparent wallet's listtransactions.
type Transaction struct {
	Address      string
	Category     string
	Amount       float32
	TxID         string
	TimeReceived uint32

	time int64
}

// transactionJSON mirrors the wire format. Transaction keeps time unexported
// and exposes it through the formatting accessors instead.
type transactionJSON struct {
	Address      string  `json:"address"`
	Category     string  `json:"category"`
	Amount       float32 `json:"amount"`
	TxID         string  `json:"txid"`
	Time         int64   `json:"time"`
	TimeReceived uint32  `json:"timereceived"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	var w transactionJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*t = Transaction{
		Address:      w.Address,
		Category:     w.Category,
		Amount:       w.Amount,
		TxID:         w.TxID,
		TimeReceived: w.TimeReceived,
		time:         w.Time,
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Transaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(transactionJSON{
		Address:      t.Address,
		Category:     t.Category,
		Amount:       t.Amount,
		TxID:         t.TxID,
		Time:         t.time,
		TimeReceived: t.TimeReceived,
	})
}

// Time returns the transaction time in UTC.
func (t Transaction) Time() time.Time {
	return time.Unix(t.time, 0).UTC()
}

// DateTime formats the transaction time as "2006-01-02 15:04:05".
func (t Transaction) DateTime() string {
	return t.Time().Format(time.DateTime)
}

// Date formats the transaction time as a short month and day, e.g. "Mar 07".
func (t Transaction) Date() string {
	return t.Time().Format("Jan 02")
}

// rawZTransaction is a z_listreceivedbyaddress entry as sent by the node,
// memo still hex encoded. Sapling notes carry outindex, Orchard notes
// actionidx and Sprout notes jsindex/jsoutindex.
type rawZTransaction struct {
	TxID       string  `json:"txid"`
	Amount     float32 `json:"amount"`
	Memo       string  `json:"memo"`
	OutIndex   uint32  `json:"outindex"`
	ActionIdx  *uint32 `json:"actionidx"`
	JSIndex    uint32  `json:"jsindex"`
	JSOutIndex uint32  `json:"jsoutindex"`
}

// ZTransaction is a shielded note received by one of our addresses.
// Memo is always decoded text (possibly empty), never the raw hex.
//
// A transaction can pay the same address more than once (a payment plus
// change), so TxID alone does not identify a note; see NoteID.
type ZTransaction struct {
	TxID   string
	Amount float32
	Memo   string
	// OutIndex is the Sapling output index or the Orchard action index.
	OutIndex uint32
	// JSIndex and JSOutIndex locate a Sprout note; both are zero otherwise.
	JSIndex    uint32
	JSOutIndex uint32
}

// NoteID identifies the note within the wallet address that received it:
// "<txid>:<outindex>" for Sapling and Orchard notes, and
// "<txid>:<jsindex>.<jsoutindex>" for Sprout notes past the first output.
func (z ZTransaction) NoteID() string {
	if z.JSIndex != 0 || z.JSOutIndex != 0 {
		return fmt.Sprintf("%s:%d.%d", z.TxID, z.JSIndex, z.JSOutIndex)
	}
	return fmt.Sprintf("%s:%d", z.TxID, z.OutIndex)
}

func newZTransaction(raw rawZTransaction) (ZTransaction, error) {
	memo, err := DecodeMemo(raw.Memo)
	if err != nil {
		return ZTransaction{}, fmt.Errorf("txid %s: %w", raw.TxID, err)
	}
	outIndex := raw.OutIndex
	if raw.ActionIdx != nil {
		outIndex = *raw.ActionIdx
	}
	return ZTransaction{
		TxID:       raw.TxID,
		Amount:     raw.Amount,
		Memo:       memo,
		OutIndex:   outIndex,
		JSIndex:    raw.JSIndex,
		JSOutIndex: raw.JSOutIndex,
	}, nil
}

// PaymentOutput is one recipient of a z_sendmany call.
type PaymentOutput struct {
	Address string
	Amount  decimal.Decimal
}

// MarshalJSON writes the amount as a JSON number, which is what zcashd expects.
func (p PaymentOutput) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Address string      `json:"address"`
		Amount  json.Number `json:"amount"`
	}{
		Address: p.Address,
		Amount:  json.Number(p.Amount.String()),
	})
}
