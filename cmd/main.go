package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/ancourn/kaldr1-sub003/blockchain"
	"github.com/ancourn/kaldr1-sub003/config"
	"github.com/ancourn/kaldr1-sub003/consensus"
	"github.com/ancourn/kaldr1-sub003/crypto"
	"github.com/ancourn/kaldr1-sub003/dag"
	"github.com/ancourn/kaldr1-sub003/db"
	"github.com/ancourn/kaldr1-sub003/handlers"
	"github.com/ancourn/kaldr1-sub003/logger"
	"github.com/ancourn/kaldr1-sub003/network"
	"github.com/ancourn/kaldr1-sub003/quantum"
	"github.com/ancourn/kaldr1-sub003/repository"
	"github.com/ancourn/kaldr1-sub003/routers"
)

func main() {
	// Load config
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Println("Config file error:", err)
		os.Exit(1)
	}

	if err := logger.InitLogger(cfg.Log.AppLogFile, cfg.Log.Level); err != nil {
		fmt.Println("Failed to initialize logger:", err)
		os.Exit(1)
	}

	logger.Logger.Info("Starting ledger node...")

	// Connect to LevelDB
	ldb, err := db.NewLevelDB(cfg.Database.Path, cfg.Database.CacheSizeMb)
	if err != nil {
		logger.Logger.Fatal("Failed to open leveldb", zap.Error(err))
	}
	defer ldb.Close()

	// Capabilities: storage, crypto, clock, network
	repo := repository.NewTransactionRepository(ldb)
	signer, err := crypto.NewSigner(cfg.Security.SignatureScheme)
	if err != nil {
		logger.Logger.Fatal("Failed to select signature scheme", zap.Error(err))
	}
	clock := crypto.SystemClock{}
	peers := network.NewPeerSet(cfg.Network.BootstrapNodes, cfg.Network.MaxPeers)

	// Core: ledger, proof validator, consensus engine, coordinator
	ledger := dag.NewLedger(0)
	validator := quantum.NewValidator(
		cfg.Security.QuantumResistanceLevel,
		cfg.Consensus.PrimeModulus,
		0,
		clock,
	)
	engine := consensus.NewEngine(
		time.Duration(cfg.Consensus.BlockTimeMs)*time.Millisecond,
		cfg.Consensus.ValidatorCount,
		cfg.Consensus.PrimeModulus,
	)
	chain := blockchain.New(ledger, validator, engine, repo, signer, peers, 0)

	if _, err := chain.Restore(); err != nil {
		logger.Logger.Fatal("Failed to restore ledger from storage", zap.Error(err))
	}
	if err := chain.Start(); err != nil {
		logger.Logger.Fatal("Failed to start blockchain", zap.Error(err))
	}

	// Initialize HTTP handlers
	h := handlers.NewHandler(chain)

	// Setup router
	r := mux.NewRouter()
	routers.RegisterRoutes(r, h)

	// HTTP Server
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		if err := srv.ListenAndServe(); err != nil {
			logger.Logger.Info("Server stopped", zap.Error(err))
		}
	}()

	logger.Logger.Info("Server running on port", zap.Int("port", cfg.Server.Port))

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh
	logger.Logger.Info("Shutdown signal received, exiting...")
	srv.Close()
	if err := chain.Stop(); err != nil {
		logger.Logger.Warn("Stop returned error", zap.Error(err))
	}
}
