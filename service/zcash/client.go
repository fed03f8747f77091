package zcash

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/zcashrpc/service/config"
	"github.com/brojonat/zcashrpc/service/metrics"
	"github.com/shopspring/decimal"
)

// RPC method names understood by zcashd.
const (
	MethodGetBlockchainInfo     = "getblockchaininfo"
	MethodListTransactions      = "listtransactions"
	MethodGetBalance            = "z_getbalance"
	MethodGetTotalBalance       = "z_gettotalbalance"
	MethodListAddresses         = "z_listaddresses"
	MethodListReceivedByAddress = "z_listreceivedbyaddress"
	MethodSendMany              = "z_sendmany"
)

const (
	jsonRPCVersion   = "1.0"
	defaultRequestID = "zcashrpc"
)

// Client issues typed JSON-RPC calls against a single zcashd node.
// It is safe for concurrent use; each call owns its request and response.
type Client struct {
	endpoint      string
	authorization string
	transport     Transport
	network       string // label for metrics, e.g. "mainnet"
	requestID     string
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records every call on m. nil disables metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithNetwork sets the network label used for metrics.
func WithNetwork(network string) Option {
	return func(c *Client) { c.network = network }
}

// WithRequestID sets the "id" member sent with every request.
func WithRequestID(id string) Option {
	return func(c *Client) { c.requestID = id }
}

// NewClient creates a client for the node at endpoint using HTTP Basic credentials.
// A nil transport gets an HTTPTransport with DefaultTimeout.
func NewClient(endpoint, username, password string, transport Transport, opts ...Option) *Client {
	if transport == nil {
		transport = NewHTTPTransport(nil)
	}
	c := &Client{
		endpoint:      endpoint,
		authorization: BasicAuth(username, password),
		transport:     transport,
		network:       "unknown",
		requestID:     defaultRequestID,
		logger:        slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewClientFromConfig creates a client from loaded configuration. A nil
// transport gets an HTTPTransport bounded by cfg.RPCTimeout. When cfg.Verbose
// is set the endpoint and credentials are written to the logger.
func NewClientFromConfig(cfg *config.Config, transport Transport, opts ...Option) (*Client, error) {
	if err := cfg.ValidateNode(); err != nil {
		return nil, err
	}
	if transport == nil {
		transport = NewHTTPTransport(&http.Client{Timeout: cfg.RPCTimeout})
	}

	opts = append([]Option{WithNetwork(cfg.Network)}, opts...)
	c := NewClient(cfg.RPCURL, cfg.RPCUser, cfg.RPCPassword, transport, opts...)

	if cfg.Verbose {
		c.logger.Info("connecting to zcashd",
			"network", cfg.Network,
			"endpoint", cfg.RPCURL,
			"username", cfg.RPCUser,
			"password", cfg.RPCPassword,
		)
	}
	return c, nil
}

// BasicAuth returns the Authorization header value for username and password.
func BasicAuth(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}

// GetBlockchainInfo returns the node's view of the chain.
func (c *Client) GetBlockchainInfo(ctx context.Context) (*BlockchainInfo, error) {
	var info BlockchainInfo
	if err := c.call(ctx, MethodGetBlockchainInfo, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// ListTransactions returns the wallet's recent transparent transactions in node order.
func (c *Client) ListTransactions(ctx context.Context) ([]Transaction, error) {
	var txns []Transaction
	if err := c.call(ctx, MethodListTransactions, nil, &txns); err != nil {
		return nil, err
	}
	return txns, nil
}

// GetShieldedBalance returns the balance of one address as a decimal string.
func (c *Client) GetShieldedBalance(ctx context.Context, address string) (string, error) {
	// zcashd answers z_getbalance with a bare JSON number.
	var amount json.Number
	if err := c.call(ctx, MethodGetBalance, []any{address}, &amount); err != nil {
		return "", err
	}
	return amount.String(), nil
}

// GetTotalBalance returns the wallet's transparent, private and total balances.
func (c *Client) GetTotalBalance(ctx context.Context) (*Balance, error) {
	var balance Balance
	if err := c.call(ctx, MethodGetTotalBalance, nil, &balance); err != nil {
		return nil, err
	}
	return &balance, nil
}

// ListShieldedAddresses returns every shielded address in the wallet in node order.
func (c *Client) ListShieldedAddresses(ctx context.Context) ([]string, error) {
	var addresses []string
	if err := c.call(ctx, MethodListAddresses, nil, &addresses); err != nil {
		return nil, err
	}
	return addresses, nil
}

// ListReceivedByShieldedAddress returns the notes received by address with
// their memos decoded. One undecodable memo fails the whole call and counts
// the call as an error.
func (c *Client) ListReceivedByShieldedAddress(ctx context.Context, address string) ([]ZTransaction, error) {
	var txns []ZTransaction
	err := c.do(ctx, MethodListReceivedByAddress, []any{address}, false, func(result json.RawMessage) error {
		var raws []rawZTransaction
		if err := decodeResult(MethodListReceivedByAddress, result, &raws); err != nil {
			return err
		}

		txns = make([]ZTransaction, 0, len(raws))
		for _, raw := range raws {
			txn, err := newZTransaction(raw)
			if err != nil {
				if c.metrics != nil {
					c.metrics.RecordMemoDecodeError(c.network)
				}
				c.logger.WarnContext(ctx, "failed to decode memo",
					"address", address,
					"txid", raw.TxID,
					"error", err,
				)
				return &Error{Kind: KindMemo, Method: MethodListReceivedByAddress, Err: err}
			}
			txns = append(txns, txn)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return txns, nil
}

// SendShielded sends amount from one address to another with z_sendmany.
// The returned operation id is nil when the node returns none.
//
// The request is sent exactly once. zcashd runs the payment asynchronously,
// so a transport error does not mean no funds moved; callers decide whether
// and how to retry.
func (c *Client) SendShielded(ctx context.Context, from, to string, amount decimal.Decimal) (*string, error) {
	return c.SendMany(ctx, from, []PaymentOutput{{Address: to, Amount: amount}})
}

// SendMany submits a z_sendmany with any number of outputs. See SendShielded.
func (c *Client) SendMany(ctx context.Context, from string, outputs []PaymentOutput) (*string, error) {
	if outputs == nil {
		outputs = []PaymentOutput{}
	}

	var opid *string
	if err := c.callOptional(ctx, MethodSendMany, []any{from, outputs}, &opid); err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "shielded payment submitted",
		"from", from,
		"outputs", len(outputs),
		"operation_id", operationIDString(opid),
	)
	return opid, nil
}

func operationIDString(opid *string) string {
	if opid == nil {
		return "none"
	}
	return *opid
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

// call decodes a required result into out; a null result is a schema error.
func (c *Client) call(ctx context.Context, method string, params []any, out any) error {
	return c.do(ctx, method, params, false, func(result json.RawMessage) error {
		return decodeResult(method, result, out)
	})
}

// callOptional is call for methods whose result may legitimately be null.
func (c *Client) callOptional(ctx context.Context, method string, params []any, out any) error {
	return c.do(ctx, method, params, true, func(result json.RawMessage) error {
		return decodeResult(method, result, out)
	})
}

// do sends one request and hands the non-null result to decode. The call is
// recorded as an error when decode fails.
func (c *Client) do(ctx context.Context, method string, params []any, nullable bool, decode func(json.RawMessage) error) (err error) {
	start := time.Now()
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			c.logger.ErrorContext(ctx, "zcashd call failed",
				"method", method,
				"kind", KindOf(err),
				"error", err,
			)
		}
		if c.metrics != nil {
			c.metrics.RecordRPCCall(method, status, c.network, time.Since(start).Seconds())
		}
	}()

	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: jsonRPCVersion,
		ID:      c.requestID,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return &Error{Kind: KindSchema, Method: method, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}

	c.logger.DebugContext(ctx, "calling zcashd", "method", method, "request", string(body))

	respBody, err := c.transport.Send(ctx, c.endpoint, c.authorization, body)
	if err != nil {
		return &Error{Kind: KindTransport, Method: method, Err: err}
	}

	result, err := parseEnvelope(respBody)
	if err != nil {
		return withMethod(err, method)
	}

	if bytes.Equal(result, []byte("null")) {
		if nullable {
			return nil
		}
		return &Error{Kind: KindSchema, Method: method, Err: fmt.Errorf("result is null")}
	}

	return decode(result)
}

func decodeResult(method string, result json.RawMessage, out any) error {
	if err := json.Unmarshal(result, out); err != nil {
		return &Error{Kind: KindSchema, Method: method, Err: fmt.Errorf("failed to decode result: %w", err)}
	}
	return nil
}

// parseEnvelope returns the raw "result" member of a JSON-RPC response.
// A non-null "error" member takes precedence over the result.
func parseEnvelope(body []byte) (json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &Error{Kind: KindEnvelope, Err: fmt.Errorf("response is not a JSON object: %w", err)}
	}

	if raw, ok := envelope["error"]; ok && !bytes.Equal(raw, []byte("null")) {
		rpcErr := &RPCError{}
		if err := json.Unmarshal(raw, rpcErr); err != nil {
			rpcErr.Message = string(raw)
		}
		return nil, &Error{Kind: KindNode, Err: rpcErr}
	}

	result, ok := envelope["result"]
	if !ok {
		return nil, &Error{Kind: KindEnvelope, Err: fmt.Errorf("response has no result")}
	}
	return result, nil
}

func withMethod(err error, method string) error {
	if e, ok := err.(*Error); ok {
		e.Method = method
	}
	return err
}
