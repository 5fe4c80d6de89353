package chains

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type chainFile struct {
	Chains []ChainInfo `yaml:"chains"`
}

// LoadFile reads additional chain entries from a YAML file:
//
//	chains:
//	  - chainId: 8453
//	    name: Base
//	    urls: ["https://mainnet.base.org"]
//	    nativeCurrency: {name: Ether, symbol: ETH, decimals: 18}
func LoadFile(path string) ([]ChainInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chain file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML chain entries
func Parse(data []byte) ([]ChainInfo, error) {
	var file chainFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse chain file: %w", err)
	}

	seen := make(map[int64]bool, len(file.Chains))
	for i, info := range file.Chains {
		if info.ChainID <= 0 {
			return nil, fmt.Errorf("chain %d: chainId must be positive", i)
		}
		if info.Name == "" {
			return nil, fmt.Errorf("chain %d: name is required", info.ChainID)
		}
		if info.NativeCurrency != nil && (info.NativeCurrency.Symbol == "" || info.NativeCurrency.Decimals <= 0) {
			return nil, fmt.Errorf("chain %d: native currency needs a symbol and positive decimals", info.ChainID)
		}
		if seen[info.ChainID] {
			return nil, fmt.Errorf("chain %d: duplicate entry", info.ChainID)
		}
		seen[info.ChainID] = true
	}
	return file.Chains, nil
}
