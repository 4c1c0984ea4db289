// Command server loads configuration, opens the artifact store, builds the
// vault client, Ethereum relay, and protocol engine, and serves the HTTP
// surface.
package main

import (
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/partyone/tss-signer/internal/config"
	"github.com/partyone/tss-signer/internal/engine"
	"github.com/partyone/tss-signer/internal/ethrelay"
	"github.com/partyone/tss-signer/internal/httpapi"
	"github.com/partyone/tss-signer/internal/store"
	"github.com/partyone/tss-signer/internal/vault"
)

func main() {
	envPath := flag.String("env", ".env", "path to the dotfile config")
	dbPath := flag.String("db", "./db", "path to the local artifact store")
	addr := flag.String("addr", ":8080", "address to listen on")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("server: failed to init logger: %v", err)
	}
	defer logger.Sync()

	settings, err := config.Load(*envPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	st, err := store.Open(*dbPath)
	if err != nil {
		logger.Fatal("artifact store degraded at boot", zap.Error(err))
	}
	defer st.Close()

	vaultClient := vault.New(settings.HcmcHost, logger)
	relay := ethrelay.New(settings.AlchemyAPI)
	eng := engine.New(st, vaultClient, logger)

	server := httpapi.New(eng, relay, logger)
	if err := server.Router().Run(*addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
