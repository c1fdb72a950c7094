package ipfs

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"meetchain-backend/models"
)

// MetadataFetcher reads event metadata from the content-addressed
// store. Failures are non-fatal by policy at every call site.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, cid string) (*models.EventMetadata, error)
}

// GatewayURL builds the HTTP gateway URL for a CID.
func GatewayURL(gateway, cid string) string {
	return strings.TrimRight(gateway, "/") + "/" + cid
}

// Client fetches metadata JSON through an IPFS HTTP gateway.
type Client struct {
	gateway string
	client  *http.Client
}

func NewClient(gateway string, client *http.Client) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{gateway: gateway, client: client}
}

func (c *Client) FetchMetadata(ctx context.Context, cid string) (*models.EventMetadata, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, GatewayURL(c.gateway, cid), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metadata gateway returned status %d for %s", resp.StatusCode, cid)
	}

	var meta models.EventMetadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode metadata for %s: %w", cid, err)
	}
	return &meta, nil
}
