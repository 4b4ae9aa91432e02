// Package ledgerclient implements bank.LedgerClient against an
// external ICRC-1-shaped asset ledger reachable over HTTP, the way
// thorclient/httpclient talks to a peer node: plain net/http plus
// encoding/json, no RPC framework.
package ledgerclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fort-major/dao/core"
	"github.com/fort-major/dao/e8s"
)

// Client is a bank.LedgerClient backed by one ledger canister's HTTP
// gateway endpoint (the FMJ or ICP ledger, selected at construction).
type Client struct {
	baseURL string
	http    *http.Client
}

// New builds a Client targeting the ledger reachable at baseURL. An
// empty baseURL yields a Client whose Transfer always fails, which
// lets daonode boot with a swap rail left unconfigured.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type transferReq struct {
	Recipient string `json:"recipient"`
	Qty       string `json:"qty"`
	Now       uint64 `json:"now"`
}

type transferResp struct {
	BlockIdx uint64 `json:"blockIdx"`
}

// Transfer posts a /transfer call to the ledger and returns the block
// index it settled at (bank.LedgerClient).
func (c *Client) Transfer(recipient core.Principal, qty e8s.E8s, now core.TimestampNs) (uint64, error) {
	if c.baseURL == "" {
		return 0, fmt.Errorf("ledgerclient: no ledger endpoint configured")
	}

	body, err := json.Marshal(transferReq{
		Recipient: recipient.String(),
		Qty:       qty.String(),
		Now:       uint64(now),
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/transfer", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("ledgerclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("ledgerclient: ledger returned %d: %s", resp.StatusCode, respBody)
	}

	var out transferResp
	if err := json.Unmarshal(respBody, &out); err != nil {
		return 0, fmt.Errorf("ledgerclient: malformed response: %w", err)
	}
	return out.BlockIdx, nil
}
