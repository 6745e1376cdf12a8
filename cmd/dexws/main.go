package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"github.com/uhyunpark/dexws/params"
	"github.com/uhyunpark/dexws/pkg/client"
	"github.com/uhyunpark/dexws/pkg/util"
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	level := util.ParseLevel(os.Getenv("LOG_LEVEL"))
	var logger *zap.Logger
	var err error
	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		logger, err = util.NewLoggerWithFile(logFile, level)
	} else {
		logger, err = util.NewLoggerAt(level)
	}
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, cfg,
		client.WithLogger(logger),
		client.WithListener(client.EventPacket, func(ev client.Event) {
			sugar.Infow("packet", "event", ev.Name, "channel", ev.Channel, "rid", ev.RequestID, "message", ev.Parsed)
		}),
		client.WithListener(client.EventWSError, func(ev client.Event) {
			sugar.Warnw("ws_error", "err", ev.Err)
		}),
	)
	if err != nil {
		sugar.Fatalw("connect_failed", "endpoint", cfg.Client.Endpoint, "err", err)
	}
	defer c.Close()
	sugar.Infow("connected", "endpoint", cfg.Client.Endpoint, "chain_id", c.ChainID())

	// DEX_SUBSCRIBE=ENGETH,ETHDAI streams market data; "*" means all markets
	if markets := os.Getenv("DEX_SUBSCRIBE"); markets != "" {
		events := splitList(os.Getenv("DEX_EVENTS"))
		if len(events) == 0 {
			events = []string{"trades", "orderBookUpdate"}
		}
		var list []string
		if markets != "*" {
			list = splitList(markets)
		}
		if _, err := c.Subscribe(ctx, list, events); err != nil {
			sugar.Fatalw("subscribe_failed", "markets", markets, "err", err)
		}
	}

	select {
	case <-ctx.Done():
	case <-c.Done():
		if err := c.Err(); err != nil {
			sugar.Warnw("connection_closed", "err", err)
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
