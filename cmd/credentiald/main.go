package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/config"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/credentialstatus"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/httpapi"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/keystore"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/proof"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/internal/statuslist"
	"github.com/rollercoaster-dev/openbadges-modular-server-sub000/pkg/logger"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := logger.New("credentiald", cfg.LogPath, cfg.Production)
	if err != nil {
		panic(err)
	}

	keys := keystore.New(cfg.KeysDir, log.New("keystore"))
	if err := keys.Initialize(); err != nil {
		log.Error(err, "keystore initialize failed")
		panic(err)
	}

	proofEngine := proof.New(keys, cfg.BaseURL, cfg.ProofClockSkew)

	lists := statuslist.NewMemoryListRepository()
	entries := statuslist.NewMemoryEntryRepository()
	listEngine := statuslist.New(lists, entries, log.New("statuslist"))
	binder := credentialstatus.New(listEngine, entries, cfg.BaseURL)

	server := httpapi.New(httpapi.Config{
		Addr:        cfg.Addr,
		BaseURL:     cfg.BaseURL,
		IssuerID:    cfg.BaseURL,
		DisableRBAC: cfg.AuthDisableRBAC,
		Production:  cfg.Production,
	}, listEngine, binder, keys, proofEngine, log.New("httpapi"))

	server.Start()

	termChan := make(chan os.Signal, 1)
	signal.Notify(termChan, syscall.SIGINT, syscall.SIGTERM)
	<-termChan

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error(err, "graceful shutdown failed")
	}

	log.Info("stopped")
}
