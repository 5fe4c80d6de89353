package evm

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sigweihq/web3connect/pkg/constants"
	"github.com/sigweihq/web3connect/pkg/utils"
)

// EndpointSource supplies the static RPC endpoints of every known chain
type EndpointSource interface {
	Endpoints(chainID int64) []string
	ChainIDs() []int64
}

// ChainListResponse represents a chain entry from chainlist.org/rpcs.json
type ChainListResponse struct {
	ChainID int `json:"chainId"`
	RPC     []struct {
		URL string `json:"url"`
	} `json:"rpc"`
}

// EndpointProvider orders the endpoints of a source by health, optionally
// extending them with public endpoints from chainlist.org
type EndpointProvider struct {
	source       EndpointSource
	chainListURL string
	httpClient   *http.Client
	healthy      func(ctx context.Context, endpoint string) bool
	logger       *slog.Logger

	endpoints map[int64][]string // chainID -> prioritized rpc urls
	mu        sync.RWMutex
}

// EndpointOption configures an EndpointProvider
type EndpointOption func(*EndpointProvider)

// WithChainList merges HTTPS endpoints from a chainlist-format document at url
func WithChainList(url string) EndpointOption {
	return func(p *EndpointProvider) {
		p.chainListURL = url
	}
}

// WithHTTPClient sets the client used to download the chain list
func WithHTTPClient(client *http.Client) EndpointOption {
	return func(p *EndpointProvider) {
		p.httpClient = client
	}
}

// NewEndpointProvider creates a provider over source. Until the first
// Refresh completes, Endpoints returns the source's endpoints unchanged.
func NewEndpointProvider(source EndpointSource, logger *slog.Logger, opts ...EndpointOption) *EndpointProvider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &EndpointProvider{
		source:     source,
		httpClient: utils.CreateHTTPClientWithTimeouts(),
		healthy:    isEndpointHealthy,
		logger:     logger,
		endpoints:  make(map[int64][]string),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Endpoints returns the prioritized endpoints for a chain
func (p *EndpointProvider) Endpoints(chainID int64) []string {
	p.mu.RLock()
	endpoints := p.endpoints[chainID]
	p.mu.RUnlock()

	if len(endpoints) == 0 {
		// Fallback to the static endpoints if no refresh has completed
		return p.source.Endpoints(chainID)
	}
	return slices.Clone(endpoints)
}

// ChainIDs returns the chains known to the underlying source
func (p *EndpointProvider) ChainIDs() []int64 {
	return p.source.ChainIDs()
}

// Refresh rebuilds the endpoint table and health-checks every endpoint.
// A chain list download failure is logged and returned, but the static
// endpoints are still checked and prioritized.
func (p *EndpointProvider) Refresh(ctx context.Context) error {
	fresh := make(map[int64][]string)
	for _, chainID := range p.source.ChainIDs() {
		if endpoints := p.source.Endpoints(chainID); len(endpoints) > 0 {
			fresh[chainID] = slices.Clone(endpoints)
		}
	}

	var fetchErr error
	if p.chainListURL != "" {
		chainListData, err := p.fetchAllChains(ctx)
		if err != nil {
			p.logger.Warn("failed to fetch chain list, using static endpoints only", "error", err)
			fetchErr = err
		} else {
			p.addChainlistEndpoints(fresh, chainListData)
		}
	}

	p.healthCheckAndPrioritize(ctx, fresh)

	p.mu.Lock()
	p.endpoints = fresh
	p.mu.Unlock()

	return fetchErr
}

// Start refreshes immediately and then every interval until ctx is done
func (p *EndpointProvider) Start(ctx context.Context, interval time.Duration) {
	if err := p.Refresh(ctx); err != nil {
		p.logger.Warn("initial endpoint refresh failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.Refresh(ctx); err != nil {
				p.logger.Warn("background endpoint refresh failed", "error", err)
			}
		}
	}
}

// fetchAllChains downloads the chain list document
func (p *EndpointProvider) fetchAllChains(ctx context.Context) ([]ChainListResponse, error) {
	chains, err := utils.GetJSON[[]ChainListResponse](ctx, p.httpClient, p.chainListURL, "chain list")
	if err != nil {
		return nil, err
	}
	if len(*chains) == 0 {
		return nil, errors.New("chain list is empty")
	}
	return *chains, nil
}

// addChainlistEndpoints appends chain list endpoints for chains the source already knows
func (p *EndpointProvider) addChainlistEndpoints(endpoints map[int64][]string, chainListData []ChainListResponse) {
	known := make(map[int64]bool)
	for _, chainID := range p.source.ChainIDs() {
		known[chainID] = true
	}

	for _, chain := range chainListData {
		chainID := int64(chain.ChainID)
		if !known[chainID] {
			continue
		}
		for _, rpc := range chain.RPC {
			if !utils.IsPublicRPCURL(rpc.URL) {
				continue
			}
			if !slices.Contains(endpoints[chainID], rpc.URL) {
				endpoints[chainID] = append(endpoints[chainID], rpc.URL)
			}
		}
	}
}

// healthCheckAndPrioritize checks endpoint health and puts working ones first
func (p *EndpointProvider) healthCheckAndPrioritize(ctx context.Context, endpoints map[int64][]string) {
	for chainID, list := range endpoints {
		healthy := make([]bool, len(list))

		var wg sync.WaitGroup
		for i, endpoint := range list {
			wg.Add(1)
			go func(i int, endpoint string) {
				defer wg.Done()
				healthy[i] = p.healthy(ctx, endpoint)
			}(i, endpoint)
		}
		wg.Wait()

		// Prioritize healthy endpoints first, then unhealthy as backup
		var healthyEndpoints, unhealthyEndpoints []string
		for i, endpoint := range list {
			if healthy[i] {
				healthyEndpoints = append(healthyEndpoints, endpoint)
			} else {
				unhealthyEndpoints = append(unhealthyEndpoints, endpoint)
			}
		}
		endpoints[chainID] = append(healthyEndpoints, unhealthyEndpoints...)

		p.logger.Debug("health check complete",
			"chainID", chainID,
			"healthy", len(healthyEndpoints),
			"unhealthy", len(unhealthyEndpoints))
	}
}

// isEndpointHealthy performs a simple health check on an RPC endpoint
func isEndpointHealthy(ctx context.Context, endpoint string) bool {
	ctx, cancel := context.WithTimeout(ctx, constants.HealthCheckTimeout)
	defer cancel()

	client, err := ethclient.DialContext(ctx, endpoint)
	if err != nil {
		return false
	}
	defer client.Close()

	_, err = client.BlockNumber(ctx)
	return err == nil
}
