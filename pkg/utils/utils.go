package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sigweihq/web3connect/pkg/constants"
)

func CreateHTTPClientWithTimeouts() *http.Client {
	return &http.Client{
		Timeout: constants.ChainListTimeout,
		Transport: &http.Transport{
			TLSHandshakeTimeout:   constants.TLSHandshakeTimeout,
			ResponseHeaderTimeout: constants.ResponseHeaderTimeout,
			ExpectContinueTimeout: constants.ExpectContinueTimeout,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse // Disable redirects to prevent redirect-based SSRF
		},
	}
}

// ValidateSecureURL validates that a remote endpoint uses TLS (https or wss).
// Plain http and ws are only accepted for loopback hosts, for testing and
// local wallets.
func ValidateSecureURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid URL: %q", rawURL)
	}

	switch u.Scheme {
	case "https", "wss":
		return nil
	case "http", "ws":
		if IsLoopback(u.Hostname()) {
			return nil
		}
		return fmt.Errorf("URL must use TLS: %s", rawURL)
	default:
		return fmt.Errorf("unsupported URL scheme %q: %s", u.Scheme, rawURL)
	}
}

// IsLoopback reports whether host names the local machine
func IsLoopback(host string) bool {
	return host == "localhost" || host == "::1" || strings.HasPrefix(host, "127.")
}

// IsPublicRPCURL reports whether a listed RPC URL can be used as is: HTTPS and
// not a template still waiting for an API key
func IsPublicRPCURL(rawURL string) bool {
	return strings.HasPrefix(rawURL, "https://") && !strings.Contains(rawURL, "${")
}

// GetJSON is a generic helper for fetching and decoding a JSON document.
// Bodies are capped at constants.MaxResponseBodySize.
func GetJSON[T any](ctx context.Context, client *http.Client, url string, name string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", name, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", name, err)
	}
	defer resp.Body.Close()

	limitedReader := io.LimitReader(resp.Body, int64(constants.MaxResponseBodySize))

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(limitedReader, 512))
		return nil, fmt.Errorf("%s request failed with status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result T
	if err := json.NewDecoder(limitedReader).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return &result, nil
}
