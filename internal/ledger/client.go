// Package ledger is the on-chain collaborator: auction-contract reads,
// pool reserve reads, and signed transaction submission over an
// Ethereum JSON-RPC endpoint.
package ledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"dutch-gokeeper/internal/fraction"
	"dutch-gokeeper/internal/txcoord"
)

// Auction-contract view selectors, computed once.
var (
	selAuctionIndex    = crypto.Keccak256([]byte("getAuctionIndex(address,address)"))[:4]
	selAuctionStart    = crypto.Keccak256([]byte("getAuctionStart(address,address)"))[:4]
	selSellVolume      = crypto.Keccak256([]byte("sellVolumesCurrent(address,address)"))[:4]
	selBuyVolume       = crypto.Keccak256([]byte("buyVolumes(address,address)"))[:4]
	selCurrentPrice    = crypto.Keccak256([]byte("getCurrentAuctionPrice(address,address,uint256)"))[:4]
	selClosingPrice    = crypto.Keccak256([]byte("closingPrices(address,address,uint256)"))[:4]
	selContractBalance = crypto.Keccak256([]byte("balances(address,address)"))[:4]
	selERC20BalanceOf  = crypto.Keccak256([]byte("balanceOf(address)"))[:4]
)

// operationSelectors maps coordinator operation names to the auction
// contract's mutating functions.
var operationSelectors = map[string][]byte{
	"postSellOrder": crypto.Keccak256([]byte("postSellOrder(address,address,uint256,uint256)"))[:4],
	"postBuyOrder":  crypto.Keccak256([]byte("postBuyOrder(address,address,uint256,uint256)"))[:4],
	"deposit":       crypto.Keccak256([]byte("deposit(address,uint256)"))[:4],
	"withdraw":      crypto.Keccak256([]byte("withdraw(address,uint256)"))[:4],
	"claimBuyerFunds": crypto.Keccak256(
		[]byte("claimBuyerFunds(address,address,address,uint256)"))[:4],
	"claimSellerFunds": crypto.Keccak256(
		[]byte("claimSellerFunds(address,address,address,uint256)"))[:4],
}

const defaultGasLimit = 500_000

// Config wires a Client.
type Config struct {
	RPCURL      string
	ChainID     *big.Int
	AuctionAddr common.Address

	// Pools maps each auction token to the constant-product pool that
	// pairs it against the reference currency.
	Pools map[common.Address]common.Address

	// ReferenceToken is the pool's currency leg.
	ReferenceToken common.Address

	// GasEstimator is optional; the coordinator has a fallback table.
	GasEstimator *GasEstimator

	GasLimit uint64
}

// Client implements the auction reader, the pool/balance readers and
// the coordinator's ledger surface.
type Client struct {
	eth      *ethclient.Client
	cfg      Config
	key      *ecdsa.PrivateKey
	signer   common.Address
	gasLimit uint64
}

// Dial connects to the RPC endpoint. The private key signs every
// transaction the coordinator submits.
func Dial(ctx context.Context, cfg Config, key *ecdsa.PrivateKey) (*Client, error) {
	if key == nil {
		return nil, fmt.Errorf("ledger: signing key required")
	}
	c, err := DialReadOnly(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.key = key
	c.signer = crypto.PubkeyToAddress(key.PublicKey)
	return c, nil
}

// DialReadOnly connects without a signing key: every view works, but
// SendTransaction fails.
func DialReadOnly(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("ledger: RPC URL required")
	}
	if cfg.ChainID == nil || cfg.ChainID.Sign() <= 0 {
		return nil, fmt.Errorf("ledger: chain id required")
	}
	if (cfg.AuctionAddr == common.Address{}) {
		return nil, fmt.Errorf("ledger: auction contract address required")
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}

	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	return &Client{eth: eth, cfg: cfg, gasLimit: gasLimit}, nil
}

func (c *Client) Close() { c.eth.Close() }

func (c *Client) SignerAddress() common.Address { return c.signer }

// ---- auction.Reader ----

func (c *Client) AuctionIndex(ctx context.Context, sell, buy common.Address) (*big.Int, error) {
	return c.callUint256(ctx, c.cfg.AuctionAddr, packCall(selAuctionIndex, sell, buy))
}

// AuctionStart returns the scheduled start. The contract stores 0 for
// an uncreated pair and 1 for "waiting for funding"; both map to the
// zero time.
func (c *Client) AuctionStart(ctx context.Context, sell, buy common.Address) (time.Time, error) {
	raw, err := c.callUint256(ctx, c.cfg.AuctionAddr, packCall(selAuctionStart, sell, buy))
	if err != nil {
		return time.Time{}, err
	}
	if raw.Cmp(big.NewInt(1)) <= 0 {
		return time.Time{}, nil
	}
	if !raw.IsInt64() {
		return time.Time{}, fmt.Errorf("auction start overflows int64: %s", raw)
	}
	return time.Unix(raw.Int64(), 0), nil
}

func (c *Client) SellVolume(ctx context.Context, sell, buy common.Address) (*big.Int, error) {
	return c.callUint256(ctx, c.cfg.AuctionAddr, packCall(selSellVolume, sell, buy))
}

func (c *Client) BuyVolume(ctx context.Context, sell, buy common.Address) (*big.Int, error) {
	return c.callUint256(ctx, c.cfg.AuctionAddr, packCall(selBuyVolume, sell, buy))
}

func (c *Client) CurrentPrice(ctx context.Context, sell, buy common.Address, index *big.Int) (fraction.Fraction, error) {
	return c.callFraction(ctx, packCall(selCurrentPrice, sell, buy, index))
}

func (c *Client) ClosingPrice(ctx context.Context, sell, buy common.Address, index *big.Int) (fraction.Fraction, error) {
	return c.callFraction(ctx, packCall(selClosingPrice, sell, buy, index))
}

// ---- arbitrage.PoolReader / arbitrage.BalanceReader ----

// Reserves reads the pool's two ERC-20 balances: the token side and
// the reference-currency side.
func (c *Client) Reserves(ctx context.Context, token common.Address) (*big.Int, *big.Int, error) {
	pool, ok := c.cfg.Pools[token]
	if !ok {
		return nil, nil, fmt.Errorf("ledger: no pool configured for token %s", token.Hex())
	}
	tokenReserve, err := c.callUint256(ctx, token, packCall(selERC20BalanceOf, pool))
	if err != nil {
		return nil, nil, fmt.Errorf("pool token reserve: %w", err)
	}
	refReserve, err := c.callUint256(ctx, c.cfg.ReferenceToken, packCall(selERC20BalanceOf, pool))
	if err != nil {
		return nil, nil, fmt.Errorf("pool reference reserve: %w", err)
	}
	return tokenReserve, refReserve, nil
}

// ContractBalance reads the account's deposit of a token held inside
// the auction contract.
func (c *Client) ContractBalance(ctx context.Context, token, account common.Address) (*big.Int, error) {
	return c.callUint256(ctx, c.cfg.AuctionAddr, packCall(selContractBalance, token, account))
}

// ---- txcoord.Ledger ----

// PendingNonce always asks the node; nothing is cached locally, so a
// not-yet-mined predecessor is reflected in the answer.
func (c *Client) PendingNonce(ctx context.Context, account common.Address) (uint64, error) {
	return c.eth.PendingNonceAt(ctx, account)
}

func (c *Client) ConfirmedNonce(ctx context.Context, account common.Address) (uint64, error) {
	return c.eth.NonceAt(ctx, account, nil)
}

// GasPriceTiers asks the external estimator; without one, the node's
// suggestion serves as every tier and the coordinator's fallback table
// covers total failure.
func (c *Client) GasPriceTiers(ctx context.Context) (txcoord.GasTiers, error) {
	if c.cfg.GasEstimator != nil {
		return c.cfg.GasEstimator.Tiers(ctx)
	}
	suggested, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return txcoord.GasTiers{}, fmt.Errorf("suggest gas price: %w", err)
	}
	return txcoord.GasTiers{SafeLow: suggested, Average: suggested, Fast: suggested}, nil
}

// SendTransaction packs the operation, signs it with the client key
// and broadcasts it.
func (c *Client) SendTransaction(ctx context.Context, account common.Address, operation string, args []any, value, gasPrice *big.Int, nonce uint64) (common.Hash, error) {
	if c.key == nil {
		return common.Hash{}, fmt.Errorf("ledger: read-only client cannot sign")
	}
	if account != c.signer {
		return common.Hash{}, fmt.Errorf("ledger: no key for account %s (signer is %s)", account.Hex(), c.signer.Hex())
	}
	selector, ok := operationSelectors[operation]
	if !ok {
		return common.Hash{}, fmt.Errorf("ledger: unknown operation %q", operation)
	}
	data, err := packCallChecked(selector, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", operation, err)
	}
	if value == nil {
		value = new(big.Int)
	}

	tx := types.NewTransaction(nonce, c.cfg.AuctionAddr, value, c.gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.NewEIP155Signer(c.cfg.ChainID), c.key)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign %s: %w", operation, err)
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("broadcast %s: %w", operation, err)
	}
	return signed.Hash(), nil
}

// ---- calldata helpers ----

func (c *Client) callUint256(ctx context.Context, to common.Address, data []byte) (*big.Int, error) {
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	if len(out) < 32 {
		return nil, fmt.Errorf("short call result (%d bytes)", len(out))
	}
	return new(big.Int).SetBytes(out[:32]), nil
}

// callFraction decodes a (numerator, denominator) pair from the
// auction contract. Denominator 0 is a valid "undetermined" answer.
func (c *Client) callFraction(ctx context.Context, data []byte) (fraction.Fraction, error) {
	to := c.cfg.AuctionAddr
	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return fraction.Fraction{}, err
	}
	if len(out) < 64 {
		return fraction.Fraction{}, fmt.Errorf("short price result (%d bytes)", len(out))
	}
	return fraction.FromBig(
		new(big.Int).SetBytes(out[:32]),
		new(big.Int).SetBytes(out[32:64]),
	), nil
}

// packCall builds selector+args calldata for the argument kinds the
// auction contract uses. It panics on an unsupported kind; use
// packCallChecked on externally supplied argument lists.
func packCall(selector []byte, args ...any) []byte {
	data, err := packCallChecked(selector, args...)
	if err != nil {
		panic(err)
	}
	return data
}

func packCallChecked(selector []byte, args ...any) ([]byte, error) {
	data := make([]byte, 0, 4+32*len(args))
	data = append(data, selector...)
	for i, arg := range args {
		switch v := arg.(type) {
		case common.Address:
			data = append(data, common.LeftPadBytes(v.Bytes(), 32)...)
		case *big.Int:
			if v == nil || v.Sign() < 0 {
				return nil, fmt.Errorf("argument %d: nil or negative big.Int", i)
			}
			data = append(data, common.LeftPadBytes(v.Bytes(), 32)...)
		case uint64:
			data = append(data, common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), 32)...)
		default:
			return nil, fmt.Errorf("argument %d: unsupported type %T", i, arg)
		}
	}
	return data, nil
}
