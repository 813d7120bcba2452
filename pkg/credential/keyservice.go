package credential

import (
	"context"
	"crypto/rsa"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/shipview/shipview/pkg/observability"
)

// KeyResolver resolves a verification key by the key identifier embedded in
// a credential header.
type KeyResolver interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

const keyCacheSize = 64

// KeyServiceClient fetches PEM-encoded public keys from the remote
// signing-key service and caches them per key id. Cache entries have no
// TTL: a key stays valid until the service stops serving it, and key
// rollover introduces a new kid rather than mutating an old one.
type KeyServiceClient struct {
	baseURL    string
	httpClient *http.Client
	cache      *lru.Cache[string, *rsa.PublicKey]
	metrics    *observability.Metrics
}

// NewKeyServiceClient creates a signing-key service client. httpClient may
// be nil, in which case http.DefaultClient is used; metrics may be nil.
func NewKeyServiceClient(baseURL string, httpClient *http.Client, metrics *observability.Metrics) (*KeyServiceClient, error) {
	cache, err := lru.New[string, *rsa.PublicKey](keyCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create key cache: %w", err)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &KeyServiceClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		cache:      cache,
		metrics:    metrics,
	}, nil
}

// Key returns the public key for a key id, fetching it on cache miss.
// Concurrent misses for the same kid may each trigger a fetch; the
// duplicate work is accepted.
func (c *KeyServiceClient) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if key, ok := c.cache.Get(kid); ok {
		if c.metrics != nil {
			c.metrics.SigningKeyCacheHitsTotal.Inc()
		}
		return key, nil
	}
	if c.metrics != nil {
		c.metrics.SigningKeyCacheMissesTotal.Inc()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/"+kid, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build key request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Service: "signing-key service", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to parse
	case resp.StatusCode >= 500:
		return nil, &UpstreamError{Service: "signing-key service", Err: fmt.Errorf("status %d", resp.StatusCode)}
	default:
		// The service does not know this kid; the credential that named it
		// cannot be trusted.
		return nil, ErrCredentialInvalid
	}

	pemBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, &UpstreamError{Service: "signing-key service", Err: err}
	}

	key, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes)
	if err != nil {
		return nil, ErrCredentialInvalid
	}

	c.cache.Add(kid, key)
	return key, nil
}
