package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/dmapctl/internal/observability"
	"github.com/danmuck/dmapctl/internal/protocol"
	"github.com/danmuck/dmapctl/internal/record"
	"github.com/rs/zerolog/log"
)

const (
	opList     = "list"
	opAllocate = "allocate"
	opSubmit   = "submit"

	allocatePath = "/c/"
)

type allocateResponse struct {
	UID string `json:"uid"`
}

// Client issues requests against one data-concentrator base URL.
type Client struct {
	cfg  Config
	base string
	http *http.Client
}

// NewClient validates cfg and builds a client with its own http.Client.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:  cfg,
		base: strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		http: &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}

// BaseURL returns the normalized backend base URL.
func (c *Client) BaseURL() string {
	return c.base
}

// ListRaw fetches the raw list payload for one protocol collection.
func (c *Client) ListRaw(ctx context.Context, desc protocol.Descriptor) ([]byte, error) {
	if !desc.Supported() {
		return nil, fmt.Errorf("%w: %s", record.ErrUnsupported, desc.Key)
	}
	return c.do(ctx, opList, http.MethodGet, desc.ListPath, nil)
}

// FetchCollection lists and decodes all records of one protocol.
func (c *Client) FetchCollection(ctx context.Context, key protocol.Key) ([]record.NodeRecord, error) {
	desc, err := protocol.Lookup(string(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", record.ErrUnsupported, key)
	}
	raw, err := c.ListRaw(ctx, desc)
	if err != nil {
		return nil, err
	}
	return record.Decode(desc.Key, raw)
}

// AllocateUID asks the backend for a fresh node identifier.
func (c *Client) AllocateUID(ctx context.Context) (string, error) {
	body, err := c.do(ctx, opAllocate, http.MethodGet, allocatePath, nil)
	if err != nil {
		return "", err
	}
	var resp allocateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAllocation, err)
	}
	uid := strings.TrimSpace(resp.UID)
	if uid == "" {
		return "", fmt.Errorf("%w: empty uid", ErrInvalidAllocation)
	}
	log.Debug().Str("uid", uid).Msg("backend.Client.AllocateUID")
	return uid, nil
}

// Submit encodes rec and posts it to the protocol's create path.
func (c *Client) Submit(ctx context.Context, key protocol.Key, rec record.NodeRecord) error {
	desc, err := protocol.Lookup(string(key))
	if err != nil {
		return fmt.Errorf("%w: %s", record.ErrUnsupported, key)
	}
	payload, err := record.Encode(desc.Key, rec)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, opSubmit, http.MethodPost, desc.CreatePath, payload)
	return err
}

func (c *Client) do(ctx context.Context, op, method, path string, payload []byte) ([]byte, error) {
	url := c.base + path
	start := time.Now()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, &NetworkError{Op: op, URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		observability.RecordBackendRequest(op, 0, time.Since(start), false)
		log.Warn().Str("op", op).Str("url", url).Err(err).Msg("backend.Client.do transport failed")
		return nil, &NetworkError{Op: op, URL: url, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes+1))
	if err == nil && int64(len(data)) > c.cfg.MaxBodyBytes {
		err = fmt.Errorf("%w: more than %d bytes", ErrBodyTooLarge, c.cfg.MaxBodyBytes)
	}
	if err != nil {
		observability.RecordBackendRequest(op, resp.StatusCode, time.Since(start), false)
		log.Warn().Str("op", op).Str("url", url).Err(err).Msg("backend.Client.do read failed")
		return nil, &NetworkError{Op: op, URL: url, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		observability.RecordBackendRequest(op, resp.StatusCode, time.Since(start), false)
		log.Warn().Str("op", op).Str("url", url).Int("status", resp.StatusCode).Msg("backend.Client.do rejected")
		return nil, &ServerError{Op: op, StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(data)), 256)}
	}
	observability.RecordBackendRequest(op, resp.StatusCode, time.Since(start), true)
	return data, nil
}

func truncate(in string, max int) string {
	if len(in) <= max {
		return in
	}
	return in[:max] + "..."
}
