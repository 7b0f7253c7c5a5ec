package settlement

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultRPCTimeout = 30 * time.Second
	defaultPollEvery  = 2 * time.Second
)

// Client is a JSON-RPC 2.0 settlement gateway client.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	pollEvery  time.Duration
}

// Config holds client configuration.
type Config struct {
	RPCURL       string
	Timeout      time.Duration
	PollInterval time.Duration
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      int    `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// NewClient creates a settlement gateway client.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.RPCURL) == "" {
		return nil, fmt.Errorf("settlement rpc url is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRPCTimeout
	}
	pollEvery := cfg.PollInterval
	if pollEvery <= 0 {
		pollEvery = defaultPollEvery
	}
	return &Client{
		rpcURL:     cfg.RPCURL,
		httpClient: &http.Client{Timeout: timeout},
		pollEvery:  pollEvery,
	}, nil
}

func (c *Client) call(ctx context.Context, method string, params []any) (json.RawMessage, error) {
	body, err := json.Marshal(rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: 1})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var rpcResp rpcResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}
	return rpcResp.Result, nil
}

// Submit broadcasts a client-signed transaction and returns its id.
func (c *Client) Submit(ctx context.Context, signedTx string) (string, error) {
	result, err := c.call(ctx, "sendrawtransaction", []any{signedTx})
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubmission, err)
	}
	var response struct {
		Hash string `json:"hash"`
	}
	if err := json.Unmarshal(result, &response); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrSubmission, err)
	}
	if response.Hash == "" {
		return "", fmt.Errorf("%w: empty transaction hash", ErrSubmission)
	}
	return response.Hash, nil
}

// Verify re-queries the ledger for the transaction outcome.
func (c *Client) Verify(ctx context.Context, txID string) (Receipt, error) {
	result, err := c.call(ctx, "gettransactionreceipt", []any{txID})
	if err != nil {
		if isNotFoundError(err) {
			return Receipt{}, ErrTxNotFound
		}
		return Receipt{}, fmt.Errorf("verify transaction: %w", err)
	}
	var receipt Receipt
	if err := json.Unmarshal(result, &receipt); err != nil {
		return Receipt{}, fmt.Errorf("decode receipt: %w", err)
	}
	receipt.Raw = result
	if receipt.TxID == "" {
		receipt.TxID = txID
	}
	switch receipt.Status {
	case StatusPending, StatusSuccess, StatusFailed:
		return receipt, nil
	default:
		return Receipt{}, fmt.Errorf("verify transaction: unknown status %q", receipt.Status)
	}
}

// WaitForReceipt polls Verify until the transaction leaves the pending
// state or ctx is done. Ledger finality is unbounded, so callers must pass
// a ctx with a deadline; a timeout leaves the outcome undecided, not failed.
func (c *Client) WaitForReceipt(ctx context.Context, txID string) (Receipt, error) {
	ticker := time.NewTicker(c.pollEvery)
	defer ticker.Stop()
	for {
		receipt, err := c.Verify(ctx, txID)
		if err == nil && receipt.Status != StatusPending {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ErrTxNotFound) {
			return Receipt{}, err
		}
		select {
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func isNotFoundError(err error) bool {
	var rpcErr *rpcError
	if !errors.As(err, &rpcErr) {
		return false
	}
	return rpcErr.Code == -100 || strings.Contains(strings.ToLower(rpcErr.Message), "not found")
}
