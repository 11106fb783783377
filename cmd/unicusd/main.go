package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"unicusmarket/config"
	"unicusmarket/core/events"
	"unicusmarket/core/state"
	"unicusmarket/native/market"
	"unicusmarket/native/mint"
	"unicusmarket/observability/logging"
	"unicusmarket/rpc"
	"unicusmarket/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	logger := logging.Setup("unicusd", cfg.NetworkName)

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	treasury, err := cfg.Treasury()
	if err != nil {
		logger.Error("Failed to decode treasury address", slog.Any("error", err))
		os.Exit(1)
	}

	manager := state.NewManager(db)
	emitter := events.NewLogEmitter(logger)

	mintEngine := mint.NewEngine()
	mintEngine.SetState(manager)
	mintEngine.SetEmitter(emitter)
	mintEngine.SetPauses(cfg)

	marketEngine := market.NewEngine()
	marketEngine.SetState(manager)
	marketEngine.SetEmitter(emitter)
	marketEngine.SetPauses(cfg)
	marketEngine.SetTreasury(treasury)
	marketEngine.SetFeeDenominator(cfg.FeeDenominator)
	marketEngine.SetListingFeeBps(cfg.ListingFeeBps)

	logger.Info("node configured",
		"network", cfg.NetworkName,
		"dataDir", cfg.DataDir,
		"listingFeeBps", cfg.ListingFeeBps,
	)

	server := rpc.NewServer(marketEngine, mintEngine, logger)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
