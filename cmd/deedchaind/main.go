package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"deedchain/config"
	"deedchain/core/events"
	"deedchain/core/types"
	"deedchain/native/compliance"
	"deedchain/native/escrow"
	"deedchain/native/registry"
	"deedchain/observability/logging"
	"deedchain/rpc"
	"deedchain/state"
	"deedchain/storage"
)

const rpcTokenEnv = "DEEDCHAIN_RPC_TOKEN"

// logEmitter forwards engine events to the structured logger.
type logEmitter struct {
	logger *slog.Logger
}

func (l logEmitter) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	attrs := []any{slog.String("type", evt.EventType())}
	if carrier, ok := evt.(interface{ Event() *types.Event }); ok {
		if inner := carrier.Event(); inner != nil {
			for key, value := range inner.Attributes {
				attrs = append(attrs, slog.String(key, value))
			}
		}
	}
	l.logger.Info("ledger event", attrs...)
}

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("DEEDCHAIN_ENV"))
	logger := logging.Setup("deedchaind", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		panic(fmt.Sprintf("Failed to open database: %v", err))
	}
	defer db.Close()

	vault, err := config.Address(cfg.Vault, config.DefaultVault())
	if err != nil {
		logger.Error("Invalid vault address", slog.Any("error", err))
		os.Exit(1)
	}
	manager, err := state.NewManager(db, vault)
	if err != nil {
		logger.Error("Failed to initialise state", slog.Any("error", err))
		os.Exit(1)
	}

	parties, complianceAdmin, err := resolveParties(cfg)
	if err != nil {
		logger.Error("Invalid party configuration", slog.Any("error", err))
		os.Exit(1)
	}

	emitter := logEmitter{logger: logger}

	regEngine := registry.NewEngine(parties.Owner)
	regEngine.SetState(manager)
	regEngine.SetEmitter(emitter)

	compEngine := compliance.NewEngine(complianceAdmin)
	compEngine.SetState(manager)
	compEngine.SetEmitter(emitter)

	escEngine := escrow.NewEngine(parties)
	escEngine.SetState(manager)
	escEngine.SetRegistry(regEngine.Bind(vault))
	escEngine.SetCompliance(compEngine)
	escEngine.SetEmitter(emitter)
	if cfg.PlatformFeeBps != escrow.DefaultPlatformFeeBps {
		if err := escEngine.SetPlatformFee(parties.Owner, cfg.PlatformFeeBps); err != nil {
			logger.Error("Failed to apply platform fee", slog.Any("error", err))
			os.Exit(1)
		}
	}

	authToken := strings.TrimSpace(os.Getenv(rpcTokenEnv))
	if authToken == "" {
		authToken = strings.TrimSpace(cfg.RPCAuthToken)
	}
	if authToken == "" {
		logger.Warn("No RPC auth token configured; mutating methods are disabled")
	}
	server := rpc.NewServer(escEngine, compEngine, regEngine, authToken)

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/rpc", server)

	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	logger.Info("RPC server listening",
		slog.String("address", cfg.RPCAddress),
		slog.String("network", cfg.NetworkName),
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("RPC server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

// resolveParties maps the configured role addresses onto the engine parties.
// The owner is required; unset secondary roles fall back to the owner so a
// single-operator deployment works out of the box.
func resolveParties(cfg *config.Config) (escrow.Parties, [20]byte, error) {
	var parties escrow.Parties
	owner, err := config.ParseAddress(cfg.Owner)
	if err != nil {
		return parties, [20]byte{}, fmt.Errorf("Owner: %w", err)
	}
	parties.Owner = owner
	if parties.Seller, err = config.Address(cfg.Seller, owner); err != nil {
		return parties, [20]byte{}, fmt.Errorf("Seller: %w", err)
	}
	if parties.Inspector, err = config.Address(cfg.Inspector, owner); err != nil {
		return parties, [20]byte{}, fmt.Errorf("Inspector: %w", err)
	}
	if parties.Lender, err = config.Address(cfg.Lender, owner); err != nil {
		return parties, [20]byte{}, fmt.Errorf("Lender: %w", err)
	}
	if parties.FeeRecipient, err = config.Address(cfg.FeeRecipient, owner); err != nil {
		return parties, [20]byte{}, fmt.Errorf("FeeRecipient: %w", err)
	}
	complianceAdmin, err := config.Address(cfg.Compliance, owner)
	if err != nil {
		return parties, [20]byte{}, fmt.Errorf("Compliance: %w", err)
	}
	return parties, complianceAdmin, nil
}
