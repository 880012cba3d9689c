package config

import (
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"dutch-gokeeper/internal/fraction"
)

const sampleYAML = `
ethereum:
  rpc_url: http://localhost:8545
  chain_id: 1
  auction_contract: "0xb9812e2fa995ec53b45e589eb25f78cb2ca4f4af"
  reference_token: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
  gas_estimator_url: https://gas.example.org/json/ethgasAPI.json
keeper:
  private_key: deadbeef
  cycle_interval: 30s
  markets:
    - token_a: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
      token_b: "0x255aa6df07540cb5d3d297f0d0d4d84cb52bc8e6"
liquidity:
  min_funding_usd: "1000"
  max_fee: 1/200
  guard_cool_down: 2m
  rules:
    - market_price_ratio: 1.10
      target_buy_ratio: 1/3
    - market_price_ratio: 99/100
      target_buy_ratio: 2/3
arbitrage:
  enabled: true
  pool_fee: 3/1000
  min_spend: "1000"
  max_spend: "5000000"
  pools:
    - token: "0x255aa6df07540cb5d3d297f0d0d4d84cb52bc8e6"
      pool: "0x4e395304655f0796bc3bc63709db72173b9ddf98"
coordinator:
  gas_tier: fast
  poll_interval: 2s
  confirm_timeout: 10m
feed:
  http_url: https://prices.example.org
  stream_url: wss://prices.example.org/stream
  max_age: 30s
journal:
  path: data/keeper.db
logging:
  dir: logs
  level: info
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "keeper.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Ethereum.ChainID != 1 {
		t.Fatalf("chain id = %d", cfg.Ethereum.ChainID)
	}
	if got := cfg.Keeper.CycleInterval.Std().Seconds(); got != 30 {
		t.Fatalf("cycle interval = %vs", got)
	}
	if cfg.Coordinator.GasTier != "fast" {
		t.Fatalf("gas tier = %q", cfg.Coordinator.GasTier)
	}

	liq, err := cfg.LiquidityConfig()
	if err != nil {
		t.Fatalf("LiquidityConfig: %v", err)
	}
	if liq.MinFundingUSD.String() != "1000" {
		t.Fatalf("min funding = %s", liq.MinFundingUSD)
	}
	if liq.MaxFee.Cmp(fraction.New(1, 200)) != 0 {
		t.Fatalf("max fee = %s", liq.MaxFee)
	}
	if len(liq.Rules) != 2 {
		t.Fatalf("rules = %d", len(liq.Rules))
	}
	if liq.Rules[0].MarketPriceRatio.Cmp(fraction.New(11, 10)) != 0 {
		t.Fatalf("rule 0 threshold = %s", liq.Rules[0].MarketPriceRatio)
	}

	minSpend, maxSpend := cfg.ArbitrageSpend()
	if minSpend.Cmp(big.NewInt(1000)) != 0 || maxSpend.Cmp(big.NewInt(5_000_000)) != 0 {
		t.Fatalf("spend bounds = %s..%s", minSpend, maxSpend)
	}
	if cfg.PoolFee().Cmp(fraction.New(3, 1000)) != 0 {
		t.Fatalf("pool fee = %s", cfg.PoolFee())
	}
	if len(cfg.Pools()) != 1 {
		t.Fatalf("pools = %d", len(cfg.Pools()))
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("KEEPER_PRIVATE_KEY", "cafebabe")
	t.Setenv("KEEPER_RPC_URL", "http://geth:8545")

	cfg, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Keeper.PrivateKey != "cafebabe" {
		t.Fatalf("private key = %q", cfg.Keeper.PrivateKey)
	}
	if cfg.Ethereum.RPCURL != "http://geth:8545" {
		t.Fatalf("rpc url = %q", cfg.Ethereum.RPCURL)
	}
}

func TestValidateRejectsBadFiles(t *testing.T) {
	cases := map[string]string{
		"missing rpc":  "ethereum:\n  chain_id: 1\n",
		"bad address":  "ethereum:\n  rpc_url: http://x\n  chain_id: 1\n  auction_contract: nope\n",
		"bad duration": "keeper:\n  cycle_interval: soon\n",
	}
	// A structurally valid file with one broken ratio.
	cases["bad rule ratio"] = `
ethereum:
  rpc_url: http://localhost:8545
  chain_id: 1
  auction_contract: "0xb9812e2fa995ec53b45e589eb25f78cb2ca4f4af"
  reference_token: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
keeper:
  private_key: deadbeef
  markets:
    - token_a: "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
      token_b: "0x255aa6df07540cb5d3d297f0d0d4d84cb52bc8e6"
liquidity:
  rules:
    - market_price_ratio: 1/0
      target_buy_ratio: 1/3
feed:
  http_url: https://prices.example.org
`
	for name, body := range cases {
		if _, err := Load(writeConfig(t, body)); err == nil {
			t.Fatalf("%s: Load should fail", name)
		}
	}
}
