package main

import (
	"context"
	"crypto/sha256"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"collarcore/config"
	"collarcore/core/events"
	"collarcore/core/types"
	"collarcore/native/collar"
	nativecommon "collarcore/native/common"
	"collarcore/native/pricefeed"
	"collarcore/observability/logging"
	"collarcore/rpc"
	"collarcore/storage"
)

const authTokenEnv = "COLLARD_AUTH_TOKEN"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("COLLARD_ENV"))
	logger := logging.Setup("collard", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("failed to load config", "path", *configFile, "error", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("failed to create data dir", "dir", cfg.DataDir, "error", err)
		os.Exit(1)
	}
	state, err := storage.Open(filepath.Join(cfg.DataDir, "collar.db"), nil)
	if err != nil {
		logger.Error("failed to open state", "error", err)
		os.Exit(1)
	}
	defer state.Close()

	feeRecipient, err := cfg.FeeRecipient()
	if err != nil {
		logger.Error("invalid fee recipient", "error", err)
		os.Exit(1)
	}

	pauses := nativecommon.StaticPauses{}
	for _, module := range cfg.PausedModules {
		if trimmed := strings.TrimSpace(module); trimmed != "" {
			pauses[trimmed] = true
		}
	}

	oracle := pricefeed.NewAggregator(cfg.Oracle.Priority, time.Duration(cfg.Oracle.MaxAgeSecs)*time.Second)
	oracle.Register("manual", pricefeed.NewManualSource())
	if endpoint := strings.TrimSpace(cfg.Oracle.Endpoint); endpoint != "" {
		client := &http.Client{Timeout: 10 * time.Second}
		oracle.Register("http", pricefeed.NewHTTPSource(client, endpoint, cfg.AssetPair, cfg.Oracle.APIKey))
	}

	emitter := &logEmitter{log: logger}
	policy := cfg.EnginePolicy()

	offers := collar.NewOfferEngine(moduleVault("collar.offers"), cfg.AssetPair)
	offers.SetState(state)
	offers.SetPolicy(policy)
	offers.SetPauses(pauses)
	offers.SetEmitter(emitter)

	provider := collar.NewProviderEngine(offers, moduleVault("collar.provider"))
	provider.SetState(state)
	provider.SetProtocolFee(cfg.Fees.APRBps, feeRecipient)
	provider.SetPauses(pauses)
	provider.SetEmitter(emitter)

	taker := collar.NewTakerEngine(provider, moduleVault("collar.taker"))
	taker.SetState(state)
	taker.SetOracle(oracle)
	taker.SetPauses(pauses)
	taker.SetEmitter(emitter)
	if cfg.GraceDelaySecs > 0 {
		taker.SetGraceDelay(cfg.GraceDelaySecs)
	}

	rolls := collar.NewRollEngine(taker, moduleVault("collar.rolls"))
	rolls.SetState(state)
	rolls.SetOracle(oracle)
	rolls.SetPauses(pauses)
	rolls.SetEmitter(emitter)

	authToken := strings.TrimSpace(os.Getenv(authTokenEnv))
	if authToken == "" {
		authToken = cfg.AuthToken
	}
	api := rpc.New(rpc.Config{
		Offers:    offers,
		Provider:  provider,
		Taker:     taker,
		Rolls:     rolls,
		State:     state,
		AuthToken: authToken,
		Logger:    logger,
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", api.Handler())

	server := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("collard listening", "address", cfg.ListenAddress, "pair", cfg.AssetPair)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}
}

// moduleVault derives a stable custody address from the module name.
func moduleVault(name string) collar.Address {
	sum := sha256.Sum256([]byte("collarcore/vault/" + name))
	var addr collar.Address
	copy(addr[:], sum[:len(addr)])
	return addr
}

// logEmitter forwards engine events to the structured logger.
type logEmitter struct {
	log interface {
		Info(msg string, args ...any)
	}
}

func (l *logEmitter) Emit(evt events.Event) {
	if l == nil || evt == nil {
		return
	}
	args := []any{"type", evt.EventType()}
	if typed, ok := evt.(*types.Event); ok {
		for key, value := range typed.Attributes {
			args = append(args, key, value)
		}
	}
	l.log.Info("engine event", args...)
}
