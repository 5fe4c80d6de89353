package chains

import (
	"github.com/sigweihq/web3connect/pkg/constants"
)

var (
	ETH   = NativeCurrency{Name: "Ether", Symbol: "ETH", Decimals: constants.NativeDecimals}
	MATIC = NativeCurrency{Name: "Matic", Symbol: "MATIC", Decimals: constants.NativeDecimals}
	FTM   = NativeCurrency{Name: "Fantom", Symbol: "FTM", Decimals: constants.NativeDecimals}
	BNB   = NativeCurrency{Name: "BNB Chain", Symbol: "BNB", Decimals: constants.NativeDecimals}
)

// keyed returns prefix+key when key is set, otherwise ""
func keyed(prefix, key string) string {
	if key == "" {
		return ""
	}
	return prefix + key
}

// nonEmpty drops empty strings
func nonEmpty(urls ...string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}

func currency(c NativeCurrency) *NativeCurrency {
	return &c
}

// DefaultChains builds the built-in chain table with candidate URLs derived from keys
func DefaultChains(keys Keys) []ChainInfo {
	infura, alchemy, grove := keys.InfuraKey, keys.AlchemyKey, keys.GroveAppID

	return []ChainInfo{
		{
			ChainID: constants.ChainMainnet,
			Name:    "Mainnet",
			URLs: nonEmpty(
				keyed("https://mainnet.infura.io/v3/", infura),
				keyed("https://eth-mainnet.g.alchemy.com/v2/", alchemy),
			),
			PublicURLs:        []string{"https://rpc.ankr.com/eth"},
			NativeCurrency:    currency(ETH),
			BlockExplorerURLs: []string{"https://etherscan.io"},
		},
		{
			ChainID: constants.ChainSepolia,
			Name:    "Sepolia",
			URLs: nonEmpty(
				keyed("https://sepolia.infura.io/v3/", infura),
				keyed("https://eth-sepolia.g.alchemy.com/v2/", alchemy),
				keyed("https://sepolia.rpc.grove.city/v1/", grove),
			),
			PublicURLs:        []string{"https://rpc.sepolia.org"},
			NativeCurrency:    currency(ETH),
			BlockExplorerURLs: []string{"https://sepolia.etherscan.io"},
		},
		{
			ChainID: constants.ChainOptimism,
			Name:    "OP Mainnet",
			URLs: nonEmpty(
				keyed("https://optimism-mainnet.infura.io/v3/", infura),
				keyed("https://opt-mainnet.g.alchemy.com/v2/", alchemy),
				"https://mainnet.optimism.io",
			),
			PublicURLs:        []string{"https://mainnet.optimism.io"},
			NativeCurrency:    currency(ETH),
			BlockExplorerURLs: []string{"https://optimistic.etherscan.io"},
		},
		{
			ChainID: constants.ChainOptimismGoerli,
			Name:    "Optimism Goerli",
			URLs: nonEmpty(
				keyed("https://optimism-goerli.infura.io/v3/", infura),
				keyed("https://opt-goerli.g.alchemy.com/v2/", alchemy),
				"https://goerli.optimism.io",
			),
			PublicURLs:        []string{"https://goerli.optimism.io"},
			NativeCurrency:    currency(ETH),
			BlockExplorerURLs: []string{"https://goerli-explorer.optimism.io"},
		},
		{
			ChainID: constants.ChainArbitrum,
			Name:    "Arbitrum One",
			URLs: nonEmpty(
				keyed("https://arbitrum-mainnet.infura.io/v3/", infura),
				keyed("https://arb-mainnet.g.alchemy.com/v2/", alchemy),
				"https://arb1.arbitrum.io/rpc",
			),
			PublicURLs:        []string{"https://arb1.arbitrum.io/rpc"},
			NativeCurrency:    currency(ETH),
			BlockExplorerURLs: []string{"https://arbiscan.io"},
		},
		{
			ChainID: constants.ChainArbitrumSepolia,
			Name:    "Arbitrum Sepolia",
			URLs: nonEmpty(
				keyed("https://arbitrum-sepolia.infura.io/v3/", infura),
				keyed("https://arb-sepolia.g.alchemy.com/v2/", alchemy),
				"https://sepolia-rollup.arbitrum.io/rpc",
			),
			PublicURLs:        []string{"https://sepolia-rollup.arbitrum.io/rpc"},
			NativeCurrency:    currency(ETH),
			BlockExplorerURLs: []string{"https://sepolia.arbiscan.io/"},
		},
		{
			ChainID: constants.ChainPolygon,
			Name:    "Polygon",
			URLs: nonEmpty(
				keyed("https://polygon-mainnet.infura.io/v3/", infura),
				keyed("https://polygon-mainnet.g.alchemy.com/v2/", alchemy),
				keyed("https://poly-mainnet.rpc.grove.city/v1/", grove),
				"https://polygon-rpc.com",
			),
			PublicURLs:        []string{"https://polygon-rpc.com"},
			NativeCurrency:    currency(MATIC),
			BlockExplorerURLs: []string{"https://polygonscan.com"},
		},
		{
			ChainID: constants.ChainPolygonMumbai,
			Name:    "Polygon Mumbai",
			URLs: nonEmpty(
				keyed("https://polygon-mumbai.infura.io/v3/", infura),
				keyed("https://polygon-mumbai.g.alchemy.com/v2/", alchemy),
				"https://rpc-mumbai.maticvigil.com",
			),
			PublicURLs:        []string{"https://rpc-mumbai.maticvigil.com"},
			NativeCurrency:    currency(MATIC),
			BlockExplorerURLs: []string{"https://mumbai.polygonscan.com"},
		},
		{
			ChainID:           constants.ChainZkSync,
			Name:              "zkSync Era",
			URLs:              []string{"https://mainnet.era.zksync.io"},
			PublicURLs:        []string{"https://mainnet.era.zksync.io"},
			NativeCurrency:    currency(ETH),
			BlockExplorerURLs: []string{"https://explorer.zksync.io"},
		},
		{
			ChainID:           constants.ChainZkSyncTestnet,
			Name:              "zkSync Era Testnet",
			URLs:              []string{"https://testnet.era.zksync.dev"},
			PublicURLs:        []string{"https://testnet.era.zksync.dev"},
			NativeCurrency:    currency(ETH),
			BlockExplorerURLs: []string{"https://goerli.explorer.zksync.io"},
		},
		{
			ChainID: constants.ChainFantom,
			Name:    "Fantom",
			URLs: nonEmpty(
				keyed("https://fantom-mainnet.rpc.grove.city/v1/", grove),
				"https://rpc.ankr.com/fantom",
			),
			PublicURLs:        []string{"https://rpc.ankr.com/fantom"},
			NativeCurrency:    currency(FTM),
			BlockExplorerURLs: []string{"https://ftmscan.com/"},
		},
		{
			ChainID:           constants.ChainFantomTestnet,
			Name:              "Fantom Testnet",
			URLs:              []string{"https://rpc.testnet.fantom.network"},
			PublicURLs:        []string{"https://rpc.testnet.fantom.network"},
			NativeCurrency:    currency(FTM),
			BlockExplorerURLs: []string{"https://testnet.ftmscan.com/"},
		},
		{
			ChainID: constants.ChainBNB,
			Name:    "BNB Smart Chain",
			URLs: nonEmpty(
				keyed("https://bsc-mainnet.rpc.grove.city/v1/", grove),
				"https://bsc-dataseed.binance.org/",
				"https://rpc.ankr.com/bsc",
			),
			PublicURLs:        []string{"https://rpc.ankr.com/bsc"},
			NativeCurrency:    currency(BNB),
			BlockExplorerURLs: []string{"https://bscscan.com/"},
		},
		{
			ChainID: constants.ChainBNBTestnet,
			Name:    "BNB Testnet",
			URLs: []string{
				"https://data-seed-prebsc-1-s1.binance.org:8545/",
				"https://data-seed-prebsc-1-s3.binance.org:8545/",
			},
			PublicURLs:        []string{"https://data-seed-prebsc-1-s1.binance.org:8545/"},
			NativeCurrency:    currency(BNB),
			BlockExplorerURLs: []string{"https://testnet.bscscan.com/"},
		},
		{
			ChainID: constants.ChainLocalhost,
			Name:    "Localhost",
			URLs:    []string{"http://127.0.0.1:8545"},
		},
	}
}
