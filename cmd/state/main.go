// Command state prints the resolved auction state for one token pair.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"dutch-gokeeper/internal/auction"
	"dutch-gokeeper/internal/config"
	"dutch-gokeeper/internal/dotenv"
	"dutch-gokeeper/internal/ledger"
)

func main() {
	log.SetFlags(0)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	var (
		configPath string
		tokenA     string
		tokenB     string
	)
	flag.StringVar(&configPath, "config", "keeper.yaml", "Path to the YAML config file")
	flag.StringVar(&tokenA, "token-a", "", "First token address")
	flag.StringVar(&tokenB, "token-b", "", "Second token address")
	flag.Parse()

	if !common.IsHexAddress(tokenA) || !common.IsHexAddress(tokenB) {
		log.Fatalf("[fatal] --token-a and --token-b must be hex addresses")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	market, err := auction.NewMarket(common.HexToAddress(tokenA), common.HexToAddress(tokenB))
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := ledger.DialReadOnly(ctx, ledger.Config{
		RPCURL:         cfg.Ethereum.RPCURL,
		ChainID:        big.NewInt(cfg.Ethereum.ChainID),
		AuctionAddr:    common.HexToAddress(cfg.Ethereum.AuctionContract),
		ReferenceToken: common.HexToAddress(cfg.Ethereum.ReferenceToken),
		Pools:          cfg.Pools(),
	})
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer client.Close()

	info, err := auction.NewResolver(client).Resolve(ctx, market)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	fmt.Printf("market: %s\n", market)
	fmt.Printf("state: %s\n", info.State)
	fmt.Printf("auction_index: %s\n", info.AuctionIndex)
	if info.Start.IsZero() {
		fmt.Printf("start: (waiting for funding)\n")
	} else {
		fmt.Printf("start: %s\n", info.Start.Format(time.RFC3339))
	}
	printSide("direct", info.Direct)
	printSide("opposite", info.Opposite)
}

func printSide(name string, side auction.SideInfo) {
	fmt.Printf("%s: sell_volume=%s buy_volume=%s price=%s closed=%v theoretically_closed=%v\n",
		name, side.SellVolume, side.BuyVolume, side.Price, side.IsClosed, side.IsTheoreticallyClosed)
}
