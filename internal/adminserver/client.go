package adminserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/edgelambda/dispatcher/internal/wire"
)

// Client is a thin HTTP client for the admin protocol, grounded on the
// operations exposed by the original source's EdgeRouter admin client
// (Edge/forwardingtableclient.h): NUM_TABLES, DUMP, FLUSH, CHANGE,
// REMOVE, TABLE.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// NewClient creates a Client against the admin endpoint at baseURL.
func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: http.DefaultClient}
}

func (c *Client) do(ctx context.Context, req wire.AdminRequest) (wire.AdminResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return wire.AdminResponse{}, fmt.Errorf("encoding admin request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return wire.AdminResponse{}, fmt.Errorf("building admin request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return wire.AdminResponse{}, fmt.Errorf("admin request failed: %w", err)
	}
	defer httpResp.Body.Close()

	var resp wire.AdminResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return wire.AdminResponse{}, fmt.Errorf("decoding admin response: %w", err)
	}
	if resp.RetCode != "OK" {
		return resp, fmt.Errorf("admin operation failed: %s", resp.RetCode)
	}
	return resp, nil
}

// NumTables returns the number of forwarding tables the server manages.
func (c *Client) NumTables(ctx context.Context) (int, error) {
	resp, err := c.do(ctx, wire.AdminRequest{Op: wire.OpNumTables})
	if err != nil {
		return 0, err
	}
	return resp.NumTables, nil
}

// Dump returns the ASCII rendering of the server's forwarding table.
func (c *Client) Dump(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, wire.AdminRequest{Op: wire.OpDump})
	if err != nil {
		return "", err
	}
	return resp.Dump, nil
}

// Flush clears every entry from the server's forwarding table.
func (c *Client) Flush(ctx context.Context) error {
	_, err := c.do(ctx, wire.AdminRequest{Op: wire.OpFlush})
	return err
}

// Change inserts or updates a (lambda, destination) forwarding entry.
func (c *Client) Change(ctx context.Context, lambda, destination string, weight float64, final bool) error {
	_, err := c.do(ctx, wire.AdminRequest{
		Op:          wire.OpChange,
		Lambda:      lambda,
		Destination: destination,
		Weight:      weight,
		Final:       final,
	})
	return err
}

// Remove deletes a (lambda, destination) forwarding entry.
func (c *Client) Remove(ctx context.Context, lambda, destination string) error {
	_, err := c.do(ctx, wire.AdminRequest{
		Op:          wire.OpRemove,
		Lambda:      lambda,
		Destination: destination,
	})
	return err
}

// Table returns a lambda -> destination -> entry view of forwarding
// table tableID (only 0 is valid; see ForwardingTable.NumTables).
func (c *Client) Table(ctx context.Context, tableID int) (map[string]map[string]wire.DestinationEntry, error) {
	resp, err := c.do(ctx, wire.AdminRequest{Op: wire.OpTable, TableID: tableID})
	if err != nil {
		return nil, err
	}
	return resp.Table, nil
}
