package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"voting-ledger/api"
	"voting-ledger/blockchain/ledger"
	"voting-ledger/config"
	"voting-ledger/encryption"
	"voting-ledger/registry"
	"voting-ledger/service"
	"voting-ledger/storage"
)

const shutdownTimeout = 10 * time.Second

var serveFlags struct {
	listenAddr string
	difficulty int
	hash       string
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.listenAddr, "listen", "", "listen address (overrides config)")
	serveCmd.Flags().IntVar(&serveFlags.difficulty, "difficulty", -1, "proof-of-work difficulty (overrides config)")
	serveCmd.Flags().StringVar(&serveFlags.hash, "hash", "", "digest algorithm: sha256, sha3-256 or keccak256")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the voting API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if serveFlags.listenAddr != "" {
			cfg.Server.ListenAddr = serveFlags.listenAddr
		}
		if serveFlags.difficulty >= 0 {
			cfg.Ledger.Difficulty = serveFlags.difficulty
		}
		if serveFlags.hash != "" {
			cfg.Ledger.HashAlgorithm = serveFlags.hash
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}
		return serve(cfg)
	},
}

func serve(cfg *config.Config) error {
	votingService, err := initializeVotingService(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize voting service: %w", err)
	}

	queue := service.NewQueueProcessor(votingService, cfg.Queue.Size, 0)
	queue.Start()

	server := api.NewServer(votingService, queue)
	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner(cfg)

	// Set up signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverChan := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s...", cfg.Server.ListenAddr)
		serverChan <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverChan:
		queue.Stop()
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case sig := <-sigChan:
		log.Printf("Received signal: %v", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	server.Hub().Close()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	}
	queue.Stop()

	if path, err := votingService.ArchiveChain(); err == nil {
		log.Printf("Chain archived to %s", path)
	} else if !errors.Is(err, service.ErrArchiveDisabled) {
		log.Printf("Failed to archive chain: %v", err)
	}

	color.Green("✓ Server stopped")
	return nil
}

func initializeVotingService(cfg *config.Config) (*service.VotingService, error) {
	chain, err := ledger.New(cfg.Ledger)
	if err != nil {
		return nil, err
	}

	adminKey, err := encryption.LoadOrGenerateAdminKey(cfg.Storage.KeyDir)
	if err != nil {
		return nil, fmt.Errorf("failed to setup admin key: %w", err)
	}
	cryptoService, err := encryption.NewCryptoService(adminKey)
	if err != nil {
		return nil, err
	}

	store, err := storage.NewRecordStore(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}

	votingService := service.NewVotingService(store, chain, cryptoService)

	if cfg.Storage.Path != "" {
		archive, err := storage.NewChainArchive(cfg.Storage.Path, cfg.Storage.Keep)
		if err != nil {
			return nil, err
		}
		votingService.SetArchive(archive)
	}

	if cfg.Seed.Enabled {
		seed, err := registry.LoadSeed(cfg.Seed.Path)
		if err != nil {
			return nil, err
		}
		if _, err := registry.Apply(store, seed, time.Now()); err != nil {
			return nil, fmt.Errorf("failed to apply seed: %w", err)
		}
	}

	return votingService, nil
}

func printBanner(cfg *config.Config) {
	color.Cyan("╔════════════════════════════════════════════════════════╗")
	color.Cyan("║              Voting Ledger API                         ║")
	color.Cyan("╚════════════════════════════════════════════════════════╝")
	fmt.Printf("  listen:     %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  difficulty: %d\n", cfg.Ledger.Difficulty)
	fmt.Printf("  hash:       %s\n", displayHash(cfg.Ledger.HashAlgorithm))
	if cfg.Storage.Path == "" {
		color.Yellow("  storage:    memory only")
	} else {
		fmt.Printf("  storage:    %s (keep %d exports)\n", cfg.Storage.Path, cfg.Storage.Keep)
	}
	color.Green("✓ Ready")
	color.Cyan("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

func displayHash(name string) string {
	if name == "" {
		return encryption.SHA256
	}
	return name
}
