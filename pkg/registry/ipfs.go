package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultIPFSTimeout = 30 * time.Second

// IPFSRegistry talks to the HTTP API of an IPFS daemon. Upload pins the
// payload and returns its CID; Fetch streams the payload back.
type IPFSRegistry struct {
	apiURL     string
	httpClient *http.Client
}

// NewIPFSRegistry builds a client for the daemon API (e.g.
// http://127.0.0.1:5001).
func NewIPFSRegistry(apiURL string, timeout time.Duration) (*IPFSRegistry, error) {
	apiURL = strings.TrimRight(strings.TrimSpace(apiURL), "/")
	if apiURL == "" {
		return nil, fmt.Errorf("ipfs api url is required")
	}
	if timeout <= 0 {
		timeout = defaultIPFSTimeout
	}
	return &IPFSRegistry{
		apiURL:     apiURL,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// Upload adds the payload to the daemon and returns the reported hash.
func (c *IPFSRegistry) Upload(ctx context.Context, r io.Reader) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", "payload")
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/api/v0/add?pin=true", pr)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ipfs add: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ipfs add: unexpected status %d", resp.StatusCode)
	}

	var added struct {
		Hash string `json:"Hash"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&added); err != nil {
		return "", fmt.Errorf("decode add response: %w", err)
	}
	if added.Hash == "" {
		return "", fmt.Errorf("ipfs add: empty hash in response")
	}
	return added.Hash, nil
}

// Fetch streams the payload for a content address.
func (c *IPFSRegistry) Fetch(ctx context.Context, address string) (io.ReadCloser, error) {
	endpoint := c.apiURL + "/api/v0/cat?arg=" + url.QueryEscape(address)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ipfs cat: %w", err)
	}
	if resp.StatusCode == http.StatusInternalServerError || resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("ipfs cat: unexpected status %d", resp.StatusCode)
	}
	return resp.Body, nil
}
