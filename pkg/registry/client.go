// Package registry talks to the gatekeeper: an external service storing
// the linear history of DID operations. This package only wraps the
// transport and a local resolution cache; the registry itself is not
// part of this module.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/openmdip/keymaster/pkg/did"
	"github.com/openmdip/keymaster/pkg/walleterr"
)

// Client wraps HTTP access to a gatekeeper registry.
type Client struct {
	baseURL    string
	name       string
	httpClient *http.Client
	cache      *Cache
}

// Config configures a Client.
type Config struct {
	URL            string
	Name           string // peerbit, BTC, tBTC
	TimeoutSeconds int
	CachePath      string
}

// NewClient builds a registry client with a local SQLite resolution
// cache. TimeoutSeconds defaults to 30 if unset, matching spec §5's
// recommended default.
func NewClient(cfg Config) (*Client, error) {
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}

	cache, err := NewCache(cfg.CachePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open resolution cache: %w", err)
	}

	return &Client{
		baseURL:    cfg.URL,
		name:       cfg.Name,
		httpClient: &http.Client{Timeout: time.Duration(timeout) * time.Second},
		cache:      cache,
	}, nil
}

// Close releases the client's local resources.
func (c *Client) Close() error {
	return c.cache.Close()
}

// RegistryName reports the anchoring registry this client was configured
// for (peerbit, BTC, tBTC).
func (c *Client) RegistryName() string {
	return c.name
}

// ResolvedDocument mirrors the gatekeeper's resolve response shape:
// spec §3's `didDocument` plus `didDocumentMetadata`.
type ResolvedDocument struct {
	DidDocument         *did.Document          `json:"didDocument"`
	DidDocumentMetadata DidDocumentMetadata `json:"didDocumentMetadata"`
}

// DidDocumentMetadata carries anchoring and lifecycle state alongside a
// resolved document.
type DidDocumentMetadata struct {
	Data              interface{}            `json:"data,omitempty"`
	Deactivated       bool                   `json:"deactivated,omitempty"`
	Manifest          map[string]interface{} `json:"manifest,omitempty"`
	Vault             string                 `json:"vault,omitempty"`
	LastOperationHash string                 `json:"lastOperationHash,omitempty"`
	// PublicKeyHistory lists a DID's superseded verification keys, newest
	// first, when the gatekeeper chooses to expose its update history.
	// Absent (nil) when it doesn't; callers fall back to whatever a
	// client's own local operation journal has observed.
	PublicKeyHistory []interface{} `json:"publicKeyHistory,omitempty"`
}

func (c *Client) endpoint(path string) string {
	return c.baseURL + path
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, walleterr.RegistryUnavailable(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, walleterr.RegistryUnavailable(err)
	}

	if resp.StatusCode >= 500 {
		return nil, walleterr.RegistryUnavailable(fmt.Errorf("gatekeeper returned %d: %s", resp.StatusCode, respBody))
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("gatekeeper rejected request (%d): %s", resp.StatusCode, respBody)
	}

	return respBody, nil
}

// Version fetches the gatekeeper's protocol version via GET /version.
func (c *Client) Version(ctx context.Context) (int, error) {
	body, err := c.do(ctx, http.MethodGet, "/version", nil)
	if err != nil {
		return 0, err
	}
	var version int
	if err := json.Unmarshal(body, &version); err != nil {
		return 0, fmt.Errorf("failed to parse version response: %w", err)
	}
	return version, nil
}

// CreateDid submits a signed create operation and returns the DID the
// gatekeeper assigned (content-hashed from the operation).
func (c *Client) CreateDid(ctx context.Context, op did.Operation) (string, error) {
	if err := op.Validate(); err != nil {
		return "", walleterr.InvalidInput()
	}

	body, err := c.do(ctx, http.MethodPost, "/did", op)
	if err != nil {
		return "", err
	}

	var result struct {
		DID string `json:"did"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse create response: %w", err)
	}

	c.cache.RecordOperation(result.DID, op)
	return result.DID, nil
}

// ResolveDid fetches the current document for did, or a deactivated
// placeholder if the DID has been deactivated.
func (c *Client) ResolveDid(ctx context.Context, target string) (*ResolvedDocument, error) {
	body, err := c.do(ctx, http.MethodGet, "/did/"+target, nil)
	if err != nil {
		return nil, err
	}

	var doc ResolvedDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse resolve response: %w", err)
	}

	c.cache.RecordResolution(target, &doc)
	return &doc, nil
}

// UpdateDid appends a signed update operation (key rotation, data
// update), chained via op.Prev onto the DID's last accepted operation.
func (c *Client) UpdateDid(ctx context.Context, op did.Operation) error {
	if err := op.Validate(); err != nil {
		return walleterr.InvalidInput()
	}

	if _, err := c.do(ctx, http.MethodPost, "/did", op); err != nil {
		return err
	}

	c.cache.RecordOperation(op.DID, op)
	return nil
}

// DeleteDid appends a signed deactivate operation.
func (c *Client) DeleteDid(ctx context.Context, op did.Operation) error {
	if err := op.Validate(); err != nil {
		return walleterr.InvalidInput()
	}

	if _, err := c.do(ctx, http.MethodPost, "/did", op); err != nil {
		return err
	}

	c.cache.RecordOperation(op.DID, op)
	return nil
}

// LastOperationHash returns the cached hash to chain the next operation's
// prev onto, refreshing from the registry if the cache has nothing yet.
func (c *Client) LastOperationHash(ctx context.Context, target string) (string, error) {
	if hash, ok := c.cache.LastOperationHash(target); ok {
		return hash, nil
	}

	resolved, err := c.ResolveDid(ctx, target)
	if err != nil {
		return "", err
	}
	return resolved.DidDocumentMetadata.LastOperationHash, nil
}

// HistoricalPublicKeys returns the DID's previously used public keys,
// newest first, as recorded in the local operation journal. Used by
// pkg/credential's historical-key fallback (Engine.candidatePublicKeys).
func (c *Client) HistoricalPublicKeys(target string) []interface{} {
	return c.cache.HistoricalPublicKeys(target)
}
