// Package config loads the keeper's YAML configuration and converts it
// into the typed configs the engines consume. Secrets (signing key,
// RPC endpoint, webhook) can be supplied via environment variables,
// which take precedence over the file.
package config

import (
	"fmt"
	"log"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"dutch-gokeeper/internal/fraction"
	"dutch-gokeeper/internal/liquidity"
)

// Duration wraps time.Duration so YAML can say "2m" or "10s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: bad duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RuleEntry is one row of the buy-side rule table as written in YAML.
// Ratios accept both "101/100" and "1.01".
type RuleEntry struct {
	MarketPriceRatio string `yaml:"market_price_ratio"`
	TargetBuyRatio   string `yaml:"target_buy_ratio"`
}

// PoolEntry binds an auction token to its constant-product pool.
type PoolEntry struct {
	Token string `yaml:"token"`
	Pool  string `yaml:"pool"`
}

// MarketEntry names one token pair the keeper watches.
type MarketEntry struct {
	TokenA string `yaml:"token_a"`
	TokenB string `yaml:"token_b"`
}

// Config mirrors the YAML file. Load applies env overrides and
// validates before returning it.
type Config struct {
	Ethereum struct {
		RPCURL          string `yaml:"rpc_url"`
		ChainID         int64  `yaml:"chain_id"`
		AuctionContract string `yaml:"auction_contract"`
		ReferenceToken  string `yaml:"reference_token"`
		GasLimit        uint64 `yaml:"gas_limit"`
		GasEstimatorURL string `yaml:"gas_estimator_url"`
		Local           bool   `yaml:"local"`
	} `yaml:"ethereum"`

	Keeper struct {
		PrivateKey    string        `yaml:"private_key"`
		Markets       []MarketEntry `yaml:"markets"`
		CycleInterval Duration      `yaml:"cycle_interval"`
	} `yaml:"keeper"`

	Liquidity struct {
		MinFundingUSD string      `yaml:"min_funding_usd"`
		MaxFee        string      `yaml:"max_fee"`
		GuardCoolDown Duration    `yaml:"guard_cool_down"`
		Rules         []RuleEntry `yaml:"rules"`
	} `yaml:"liquidity"`

	Arbitrage struct {
		Enabled  bool        `yaml:"enabled"`
		PoolFee  string      `yaml:"pool_fee"`
		MinSpend string      `yaml:"min_spend"`
		MaxSpend string      `yaml:"max_spend"`
		Pools    []PoolEntry `yaml:"pools"`
	} `yaml:"arbitrage"`

	Coordinator struct {
		GasTier        string   `yaml:"gas_tier"`
		PollInterval   Duration `yaml:"poll_interval"`
		ConfirmTimeout Duration `yaml:"confirm_timeout"`
	} `yaml:"coordinator"`

	Feed struct {
		HTTPURL   string   `yaml:"http_url"`
		StreamURL string   `yaml:"stream_url"`
		MaxAge    Duration `yaml:"max_age"`
	} `yaml:"feed"`

	Journal struct {
		Path string `yaml:"path"`
	} `yaml:"journal"`

	Logging struct {
		Dir   string `yaml:"dir"`
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Notify struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"notify"`
}

// Load reads the file at path, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.overrideWithEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Environment variables override file values so the signing key never
// has to live on disk.
func (c *Config) overrideWithEnv() {
	if c.Keeper.PrivateKey != "" {
		log.Printf("[warn] config: private key found in config file; prefer KEEPER_PRIVATE_KEY")
	}
	if v := os.Getenv("KEEPER_PRIVATE_KEY"); v != "" {
		c.Keeper.PrivateKey = v
	}
	if v := os.Getenv("KEEPER_RPC_URL"); v != "" {
		c.Ethereum.RPCURL = v
	}
	if v := os.Getenv("KEEPER_WEBHOOK_URL"); v != "" {
		c.Notify.WebhookURL = v
	}
}

// Validate checks every field the engines will later rely on, so a bad
// file fails at startup rather than mid-cycle.
func (c *Config) Validate() error {
	if c.Ethereum.RPCURL == "" {
		return fmt.Errorf("config: ethereum.rpc_url is required")
	}
	if c.Ethereum.ChainID <= 0 {
		return fmt.Errorf("config: ethereum.chain_id must be positive")
	}
	if !common.IsHexAddress(c.Ethereum.AuctionContract) {
		return fmt.Errorf("config: bad auction contract address %q", c.Ethereum.AuctionContract)
	}
	if !common.IsHexAddress(c.Ethereum.ReferenceToken) {
		return fmt.Errorf("config: bad reference token address %q", c.Ethereum.ReferenceToken)
	}
	if len(c.Keeper.Markets) == 0 {
		return fmt.Errorf("config: at least one market is required")
	}
	for i, m := range c.Keeper.Markets {
		if !common.IsHexAddress(m.TokenA) || !common.IsHexAddress(m.TokenB) {
			return fmt.Errorf("config: market %d has a bad token address", i)
		}
	}
	if c.Liquidity.MinFundingUSD != "" {
		if _, err := decimal.NewFromString(c.Liquidity.MinFundingUSD); err != nil {
			return fmt.Errorf("config: liquidity.min_funding_usd: %w", err)
		}
	}
	if c.Liquidity.MaxFee != "" {
		if _, err := fraction.Parse(c.Liquidity.MaxFee); err != nil {
			return fmt.Errorf("config: liquidity.max_fee: %w", err)
		}
	}
	if len(c.Liquidity.Rules) == 0 {
		return fmt.Errorf("config: liquidity.rules must not be empty")
	}
	for i, r := range c.Liquidity.Rules {
		if _, err := fraction.Parse(r.MarketPriceRatio); err != nil {
			return fmt.Errorf("config: rule %d market_price_ratio: %w", i, err)
		}
		if _, err := fraction.Parse(r.TargetBuyRatio); err != nil {
			return fmt.Errorf("config: rule %d target_buy_ratio: %w", i, err)
		}
	}
	if c.Arbitrage.Enabled {
		for i, p := range c.Arbitrage.Pools {
			if !common.IsHexAddress(p.Token) || !common.IsHexAddress(p.Pool) {
				return fmt.Errorf("config: arbitrage pool %d has a bad address", i)
			}
		}
		for _, field := range []struct{ name, val string }{
			{"pool_fee", c.Arbitrage.PoolFee},
		} {
			if field.val == "" {
				continue
			}
			if _, err := fraction.Parse(field.val); err != nil {
				return fmt.Errorf("config: arbitrage.%s: %w", field.name, err)
			}
		}
		for _, field := range []struct{ name, val string }{
			{"min_spend", c.Arbitrage.MinSpend},
			{"max_spend", c.Arbitrage.MaxSpend},
		} {
			if field.val == "" {
				continue
			}
			if _, ok := new(big.Int).SetString(field.val, 10); !ok {
				return fmt.Errorf("config: arbitrage.%s: bad integer %q", field.name, field.val)
			}
		}
	}
	if c.Feed.HTTPURL == "" {
		return fmt.Errorf("config: feed.http_url is required")
	}
	return nil
}

// LiquidityConfig converts the liquidity section into the engine's
// typed form.
func (c *Config) LiquidityConfig() (liquidity.Config, error) {
	out := liquidity.Config{GuardCoolDown: c.Liquidity.GuardCoolDown.Std()}
	if c.Liquidity.MinFundingUSD != "" {
		threshold, err := decimal.NewFromString(c.Liquidity.MinFundingUSD)
		if err != nil {
			return liquidity.Config{}, err
		}
		out.MinFundingUSD = threshold
	}
	if c.Liquidity.MaxFee != "" {
		fee, err := fraction.Parse(c.Liquidity.MaxFee)
		if err != nil {
			return liquidity.Config{}, err
		}
		out.MaxFee = fee
	}
	for _, r := range c.Liquidity.Rules {
		threshold, err := fraction.Parse(r.MarketPriceRatio)
		if err != nil {
			return liquidity.Config{}, err
		}
		target, err := fraction.Parse(r.TargetBuyRatio)
		if err != nil {
			return liquidity.Config{}, err
		}
		out.Rules = append(out.Rules, liquidity.Rule{
			MarketPriceRatio: threshold,
			TargetBuyRatio:   target,
		})
	}
	return out, nil
}

// Pools returns the arbitrage token→pool map in address form.
func (c *Config) Pools() map[common.Address]common.Address {
	pools := make(map[common.Address]common.Address, len(c.Arbitrage.Pools))
	for _, p := range c.Arbitrage.Pools {
		pools[common.HexToAddress(p.Token)] = common.HexToAddress(p.Pool)
	}
	return pools
}

// ArbitrageSpend returns the parsed min/max spend bounds. Empty fields
// return nil, which the engine replaces with its defaults.
func (c *Config) ArbitrageSpend() (minSpend, maxSpend *big.Int) {
	if c.Arbitrage.MinSpend != "" {
		minSpend, _ = new(big.Int).SetString(c.Arbitrage.MinSpend, 10)
	}
	if c.Arbitrage.MaxSpend != "" {
		maxSpend, _ = new(big.Int).SetString(c.Arbitrage.MaxSpend, 10)
	}
	return minSpend, maxSpend
}

// PoolFee returns the configured pool fee, or an undetermined fraction
// when unset so the engine default applies.
func (c *Config) PoolFee() fraction.Fraction {
	if c.Arbitrage.PoolFee == "" {
		return fraction.Fraction{}
	}
	fee, err := fraction.Parse(c.Arbitrage.PoolFee)
	if err != nil {
		return fraction.Fraction{}
	}
	return fee
}
