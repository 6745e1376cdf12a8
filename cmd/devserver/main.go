package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/uhyunpark/dexws/params"
	"github.com/uhyunpark/dexws/pkg/devserver"
	"github.com/uhyunpark/dexws/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerAt(util.ParseLevel(os.Getenv("LOG_LEVEL")))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	opts := []devserver.Option{devserver.WithLogger(logger)}
	if cfg.DevServer.ListingFile != "" {
		listing, err := devserver.LoadListing(cfg.DevServer.ListingFile)
		if err != nil {
			sugar.Fatalw("listing_load_failed", "file", cfg.DevServer.ListingFile, "err", err)
		}
		opts = append(opts, devserver.WithListing(listing))
		sugar.Infow("listing_loaded", "file", cfg.DevServer.ListingFile, "markets", len(listing.Markets))
	}

	srv, err := devserver.New(cfg, opts...)
	if err != nil {
		sugar.Fatalw("devserver_init_failed", "err", err)
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(cfg.DevServer.Addr); err != nil {
			sugar.Fatalw("devserver_failed", "err", err)
		}
	}()

	sugar.Infow("devserver_ready",
		"ws", "ws://localhost"+cfg.DevServer.Addr+"/ws",
		"contract", srv.ContractAddress())
	<-ctx.Done()
}
