package zcash

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/brojonat/zcashrpc/service/config"
	"github.com/brojonat/zcashrpc/service/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sentRequest is one request captured by mockTransport.
type sentRequest struct {
	Endpoint      string
	Authorization string
	Body          string
	Method        string
	Params        []json.RawMessage
}

// mockTransport implements Transport for testing.
// It's behavior-focused: a handler decides the response for each request.
type mockTransport struct {
	mu       sync.Mutex
	handler  func(req sentRequest) ([]byte, error)
	requests []sentRequest
}

func (m *mockTransport) Send(ctx context.Context, endpoint, authorization string, body []byte) ([]byte, error) {
	var decoded struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, err
	}
	req := sentRequest{
		Endpoint:      endpoint,
		Authorization: authorization,
		Body:          string(body),
		Method:        decoded.Method,
		Params:        decoded.Params,
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	return m.handler(req)
}

func (m *mockTransport) sent() []sentRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]sentRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// respondWith returns a transport that answers every request with body.
func respondWith(body string) *mockTransport {
	return &mockTransport{handler: func(sentRequest) ([]byte, error) {
		return []byte(body), nil
	}}
}

func newTestClient(transport Transport) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient("http://127.0.0.1:8232/", "user", "pass", transport, WithLogger(logger))
}

func TestBasicAuth(t *testing.T) {
	assert.Equal(t, "Basic dXNlcjpwYXNz", BasicAuth("user", "pass"))
}

func TestGetBlockchainInfo(t *testing.T) {
	ctx := context.Background()
	transport := respondWith(`{"result": {"chain":"main","blocks":12,"difficulty":1.5}}`)
	client := newTestClient(transport)

	info, err := client.GetBlockchainInfo(ctx)

	require.NoError(t, err)
	assert.Equal(t, &BlockchainInfo{Chain: "main", Blocks: 12, Difficulty: 1.5}, info)

	sent := transport.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "http://127.0.0.1:8232/", sent[0].Endpoint)
	assert.Equal(t, "Basic dXNlcjpwYXNz", sent[0].Authorization)
	assert.Equal(t, `{"jsonrpc":"1.0","id":"zcashrpc","method":"getblockchaininfo","params":[]}`, sent[0].Body)
}

func TestWithRequestID(t *testing.T) {
	transport := respondWith(`{"result": []}`)
	client := NewClient("http://node/", "u", "p", transport, WithRequestID("curltest"))

	_, err := client.ListShieldedAddresses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `{"jsonrpc":"1.0","id":"curltest","method":"z_listaddresses","params":[]}`, transport.sent()[0].Body)
}

func TestListTransactions(t *testing.T) {
	transport := respondWith(`{"result": [
		{"address":"t1a","category":"receive","amount":0.5,"txid":"aa","time":1500000000,"timereceived":1500000001},
		{"address":"t1b","category":"send","amount":-0.25,"txid":"bb","time":1500086400,"timereceived":1500086401}
	], "error": null, "id": "zcashrpc"}`)
	client := newTestClient(transport)

	txns, err := client.ListTransactions(context.Background())

	require.NoError(t, err)
	require.Len(t, txns, 2)
	assert.Equal(t, "aa", txns[0].TxID)
	assert.Equal(t, "2017-07-14 02:40:00", txns[0].DateTime())
	assert.Equal(t, "bb", txns[1].TxID)
	assert.Equal(t, float32(-0.25), txns[1].Amount)
	assert.Equal(t, "Jul 15", txns[1].Date())
}

func TestGetShieldedBalance(t *testing.T) {
	transport := respondWith(`{"result": 1.23456789}`)
	client := newTestClient(transport)

	balance, err := client.GetShieldedBalance(context.Background(), "zs1abc")

	require.NoError(t, err)
	assert.Equal(t, "1.23456789", balance)

	sent := transport.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, MethodGetBalance, sent[0].Method)
	require.Len(t, sent[0].Params, 1)
	assert.JSONEq(t, `"zs1abc"`, string(sent[0].Params[0]))
}

func TestGetTotalBalance(t *testing.T) {
	transport := respondWith(`{"result": {"transparent":"0.01","private":"1.50","total":"1.51"}}`)
	client := newTestClient(transport)

	balance, err := client.GetTotalBalance(context.Background())

	require.NoError(t, err)
	assert.Equal(t, &Balance{Transparent: "0.01", Private: "1.50", Total: "1.51"}, balance)
}

func TestListShieldedAddresses(t *testing.T) {
	transport := respondWith(`{"result": ["zs1a","zs1b","zs1c"]}`)
	client := newTestClient(transport)

	addresses, err := client.ListShieldedAddresses(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"zs1a", "zs1b", "zs1c"}, addresses)
}

func TestListReceivedByShieldedAddress(t *testing.T) {
	transport := respondWith(`{"result": [
		{"txid":"aa","amount":0.5,"memo":"48656c6c6f0000","outindex":0},
		{"txid":"aa","amount":0.1,"memo":"f6","outindex":1},
		{"txid":"bb","amount":1.25,"memo":"f60000","jsindex":1,"jsoutindex":0}
	]}`)
	client := newTestClient(transport)

	txns, err := client.ListReceivedByShieldedAddress(context.Background(), "zs1abc")

	require.NoError(t, err)
	assert.Equal(t, []ZTransaction{
		{TxID: "aa", Amount: 0.5, Memo: "Hello", OutIndex: 0},
		{TxID: "aa", Amount: 0.1, Memo: "", OutIndex: 1},
		{TxID: "bb", Amount: 1.25, Memo: "", JSIndex: 1, JSOutIndex: 0},
	}, txns)
	assert.NotEqual(t, txns[0].NoteID(), txns[1].NoteID())
	assert.JSONEq(t, `"zs1abc"`, string(transport.sent()[0].Params[0]))
}

func TestListReceivedByShieldedAddress_BadMemo(t *testing.T) {
	transport := respondWith(`{"result": [
		{"txid":"aa","amount":0.5,"memo":"48656c6c6f"},
		{"txid":"bb","amount":1.25,"memo":"ff00"}
	]}`)
	client := newTestClient(transport)

	txns, err := client.ListReceivedByShieldedAddress(context.Background(), "zs1abc")

	require.Error(t, err)
	assert.Nil(t, txns)
	assert.ErrorIs(t, err, ErrMemo)
	assert.Equal(t, KindMemo, KindOf(err))
	assert.Contains(t, err.Error(), "txid bb")
}

func TestListReceivedByShieldedAddress_BadMemoCountsAsFailedCall(t *testing.T) {
	transport := respondWith(`{"result": [{"txid":"bb","amount":1.25,"memo":"ff00"}]}`)
	reg := prometheus.NewRegistry()
	client := NewClient("http://node/", "u", "p", transport,
		WithMetrics(metrics.NewMetrics(reg)),
		WithNetwork("testnet"),
	)

	_, err := client.ListReceivedByShieldedAddress(context.Background(), "zs1abc")
	require.Error(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	statuses := map[string]float64{}
	var memoErrors float64
	for _, f := range families {
		switch f.GetName() {
		case "zcash_rpc_calls_total":
			for _, m := range f.GetMetric() {
				for _, lp := range m.GetLabel() {
					if lp.GetName() == "status" {
						statuses[lp.GetValue()] += m.GetCounter().GetValue()
					}
				}
			}
		case "zcash_memo_decode_errors_total":
			for _, m := range f.GetMetric() {
				memoErrors += m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, map[string]float64{"error": 1}, statuses)
	assert.Equal(t, 1.0, memoErrors)
}

func TestSendShielded(t *testing.T) {
	transport := respondWith(`{"result": "opid-1234"}`)
	client := newTestClient(transport)

	opid, err := client.SendShielded(context.Background(), "zs1from", "zs1to", decimal.RequireFromString("0.01"))

	require.NoError(t, err)
	require.NotNil(t, opid)
	assert.Equal(t, "opid-1234", *opid)

	sent := transport.sent()
	require.Len(t, sent, 1)
	assert.Equal(t,
		`{"jsonrpc":"1.0","id":"zcashrpc","method":"z_sendmany","params":["zs1from",[{"address":"zs1to","amount":0.01}]]}`,
		sent[0].Body,
	)
}

func TestSendShielded_NullResult(t *testing.T) {
	client := newTestClient(respondWith(`{"result": null}`))

	opid, err := client.SendShielded(context.Background(), "zs1from", "zs1to", decimal.NewFromInt(1))

	require.NoError(t, err)
	assert.Nil(t, opid)
	assert.Equal(t, "none", operationIDString(opid))
}

func TestSendShielded_NotRetried(t *testing.T) {
	transportErr := errors.New("connection reset by peer")
	transport := &mockTransport{handler: func(sentRequest) ([]byte, error) {
		return nil, transportErr
	}}
	client := newTestClient(transport)

	opid, err := client.SendShielded(context.Background(), "zs1from", "zs1to", decimal.NewFromInt(1))

	require.Error(t, err)
	assert.Nil(t, opid)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, transportErr)
	assert.Len(t, transport.sent(), 1)
}

func TestSendMany_MultipleOutputs(t *testing.T) {
	transport := respondWith(`{"result": "opid-1"}`)
	client := newTestClient(transport)

	_, err := client.SendMany(context.Background(), "zs1from", []PaymentOutput{
		{Address: "zs1a", Amount: decimal.RequireFromString("0.5")},
		{Address: "t1b", Amount: decimal.RequireFromString("1.25")},
	})

	require.NoError(t, err)
	sent := transport.sent()
	require.Len(t, sent[0].Params, 2)
	assert.JSONEq(t, `[{"address":"zs1a","amount":0.5},{"address":"t1b","amount":1.25}]`, string(sent[0].Params[1]))
}

// callEach invokes every client operation once and returns their errors by name.
func callEach(client *Client) map[string]error {
	ctx := context.Background()
	errs := map[string]error{}
	_, errs["GetBlockchainInfo"] = client.GetBlockchainInfo(ctx)
	_, errs["ListTransactions"] = client.ListTransactions(ctx)
	_, errs["GetShieldedBalance"] = client.GetShieldedBalance(ctx, "zs1a")
	_, errs["GetTotalBalance"] = client.GetTotalBalance(ctx)
	_, errs["ListShieldedAddresses"] = client.ListShieldedAddresses(ctx)
	_, errs["ListReceivedByShieldedAddress"] = client.ListReceivedByShieldedAddress(ctx, "zs1a")
	_, errs["SendShielded"] = client.SendShielded(ctx, "zs1a", "zs1b", decimal.NewFromInt(1))
	return errs
}

func TestMissingResult_IsEnvelopeError(t *testing.T) {
	client := newTestClient(respondWith(`{}`))

	for name, err := range callEach(client) {
		t.Run(name, func(t *testing.T) {
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrEnvelope)
			assert.NotErrorIs(t, err, ErrSchema)
		})
	}
}

func TestInvalidJSON_IsEnvelopeError(t *testing.T) {
	client := newTestClient(respondWith(`<html>502 Bad Gateway</html>`))

	for name, err := range callEach(client) {
		t.Run(name, func(t *testing.T) {
			require.Error(t, err)
			assert.Equal(t, KindEnvelope, KindOf(err))
		})
	}
}

func TestTransportFailure_IsTransportError(t *testing.T) {
	transportErr := context.DeadlineExceeded
	client := newTestClient(TransportFunc(func(context.Context, string, string, []byte) ([]byte, error) {
		return nil, transportErr
	}))

	for name, err := range callEach(client) {
		t.Run(name, func(t *testing.T) {
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrTransport)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestNodeError(t *testing.T) {
	client := newTestClient(respondWith(`{"result":null,"error":{"code":-5,"message":"Invalid address"},"id":"zcashrpc"}`))

	_, err := client.GetShieldedBalance(context.Background(), "bogus")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNode)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, -5, rpcErr.Code)
	assert.Equal(t, "Invalid address", rpcErr.Message)
	assert.Contains(t, err.Error(), MethodGetBalance)
}

func TestSchemaMismatch(t *testing.T) {
	tests := []struct {
		name string
		body string
		call func(c *Client) error
	}{
		{
			name: "chain info is a string",
			body: `{"result": "main"}`,
			call: func(c *Client) error { _, err := c.GetBlockchainInfo(context.Background()); return err },
		},
		{
			name: "blocks is negative",
			body: `{"result": {"chain":"main","blocks":-1,"difficulty":1}}`,
			call: func(c *Client) error { _, err := c.GetBlockchainInfo(context.Background()); return err },
		},
		{
			name: "total balance is null",
			body: `{"result": null}`,
			call: func(c *Client) error { _, err := c.GetTotalBalance(context.Background()); return err },
		},
		{
			name: "balance is a bool",
			body: `{"result": true}`,
			call: func(c *Client) error { _, err := c.GetShieldedBalance(context.Background(), "zs1a"); return err },
		},
		{
			name: "addresses is an object",
			body: `{"result": {"zs1a": true}}`,
			call: func(c *Client) error { _, err := c.ListShieldedAddresses(context.Background()); return err },
		},
		{
			name: "operation id is a number",
			body: `{"result": 7}`,
			call: func(c *Client) error {
				_, err := c.SendShielded(context.Background(), "a", "b", decimal.NewFromInt(1))
				return err
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call(newTestClient(respondWith(tt.body)))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSchema)
			assert.NotErrorIs(t, err, ErrEnvelope)
		})
	}
}

func TestNewClientFromConfig_Verbose(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cfg := &config.Config{
		Network:     config.NetworkTestnet,
		RPCURL:      config.TestnetRPCURL,
		RPCUser:     "alice",
		RPCPassword: "hunter2",
		RPCTimeout:  5 * time.Second,
		Verbose:     true,
	}
	transport := respondWith(`{"result": ["zs1a"]}`)

	client, err := NewClientFromConfig(cfg, transport, WithLogger(logger))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "connecting to zcashd")
	assert.Contains(t, buf.String(), "endpoint=http://127.0.0.1:18232/")
	assert.Contains(t, buf.String(), "username=alice")
	assert.Contains(t, buf.String(), "password=hunter2")

	_, err = client.ListShieldedAddresses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, config.TestnetRPCURL, transport.sent()[0].Endpoint)
	assert.Equal(t, BasicAuth("alice", "hunter2"), transport.sent()[0].Authorization)
}

func TestNewClientFromConfig_Quiet(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	cfg := &config.Config{
		Network:     config.NetworkMainnet,
		RPCURL:      config.MainnetRPCURL,
		RPCUser:     "alice",
		RPCPassword: "hunter2",
		RPCTimeout:  5 * time.Second,
	}

	_, err := NewClientFromConfig(cfg, respondWith(`{}`), WithLogger(logger))
	require.NoError(t, err)
	assert.NotContains(t, buf.String(), "hunter2")
}

func TestNewClientFromConfig_Invalid(t *testing.T) {
	_, err := NewClientFromConfig(&config.Config{Network: "regtest"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown network")
}
