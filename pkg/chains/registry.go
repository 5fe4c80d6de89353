package chains

import (
	"slices"
	"sync"

	"github.com/sigweihq/web3connect/pkg/constants"
)

// Registry is a read-only lookup of supported chains.
// All lookups are total: a miss is reported, never panics.
type Registry struct {
	chains map[int64]ChainInfo
	mu     sync.RWMutex
}

// NewRegistry creates a registry from the default table.
// Entries in extra replace default entries with the same chain ID.
func NewRegistry(keys Keys, extra ...ChainInfo) *Registry {
	r := &Registry{
		chains: make(map[int64]ChainInfo),
	}
	for _, info := range DefaultChains(keys) {
		r.chains[info.ChainID] = info
	}
	for _, info := range extra {
		r.chains[info.ChainID] = info.clone()
	}
	return r
}

// Describe returns the entry for a chain
func (r *Registry) Describe(chainID int64) (ChainInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.chains[chainID]
	if !ok {
		return ChainInfo{}, &UnknownChainError{ChainID: chainID}
	}
	return info.clone(), nil
}

// IsSupported checks if a chain has an entry
func (r *Registry) IsSupported(chainID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.chains[chainID]
	return ok
}

// AddChainParameters builds the add-chain payload for an extended entry.
// Returns false for minimal and unknown entries; callers then fall back to the raw chain ID.
func (r *Registry) AddChainParameters(chainID int64) (AddChainParameters, bool) {
	info, err := r.Describe(chainID)
	if err != nil || !info.IsExtended() {
		return AddChainParameters{}, false
	}
	return AddChainParameters{
		ChainID:           info.ChainID,
		ChainName:         info.Name,
		NativeCurrency:    *info.NativeCurrency,
		RPCURLs:           info.PublicURLs,
		BlockExplorerURLs: info.BlockExplorerURLs,
	}, true
}

// NativeSymbol returns the native currency symbol of an extended entry
func (r *Registry) NativeSymbol(chainID int64) (string, bool) {
	info, err := r.Describe(chainID)
	if err != nil || !info.IsExtended() {
		return "", false
	}
	return info.NativeCurrency.Symbol, true
}

// NativeDecimals returns the native currency decimals, 18 when unknown
func (r *Registry) NativeDecimals(chainID int64) int32 {
	info, err := r.Describe(chainID)
	if err != nil || !info.IsExtended() {
		return constants.NativeDecimals
	}
	return info.NativeCurrency.Decimals
}

// ExplorerURLs returns the block explorers of an extended entry (nil otherwise)
func (r *Registry) ExplorerURLs(chainID int64) []string {
	info, err := r.Describe(chainID)
	if err != nil || !info.IsExtended() {
		return nil
	}
	return info.BlockExplorerURLs
}

// Endpoints returns the candidate RPC URLs for a chain.
// Chains without any candidate URL fall back to their public URLs.
func (r *Registry) Endpoints(chainID int64) []string {
	info, err := r.Describe(chainID)
	if err != nil {
		return nil
	}
	if len(info.URLs) > 0 {
		return info.URLs
	}
	return info.PublicURLs
}

// URLs returns chainID -> endpoints for every chain that has at least one endpoint
func (r *Registry) URLs() map[int64][]string {
	urls := make(map[int64][]string)
	for _, chainID := range r.ChainIDs() {
		if endpoints := r.Endpoints(chainID); len(endpoints) > 0 {
			urls[chainID] = endpoints
		}
	}
	return urls
}

// ChainIDs returns all registered chain IDs in ascending order
func (r *Registry) ChainIDs() []int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]int64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
