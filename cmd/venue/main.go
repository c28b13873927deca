package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/klear-accumulate/internal/config"
	"github.com/ksred/klear-accumulate/internal/logging"
	"github.com/ksred/klear-accumulate/internal/paper"
	"github.com/ksred/klear-accumulate/internal/venue"
)

// main runs the paper venue with graceful shutdown support.
//
// Environment:
//   - PORT: listen port, default 8080
//   - VENUE_SECRET: API key signing secret
//   - VENUE_DSN: sqlite DSN, default in-memory
//   - VENUE_ACCOUNTS: comma separated trading accounts
//   - VENUE_LISTINGS: comma separated SYMBOL:PRICE pairs
//   - DEBUG, ENV: logging as for accumulate
func main() {
	logCfg := config.Default().Log
	logCfg.Production = os.Getenv("ENV") == "production"
	if os.Getenv("DEBUG") == "true" {
		logCfg.Level = "debug"
	}
	closer, err := logging.Setup(logCfg)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to configure logging")
	}
	defer closer.Close()

	opts, err := optionsFromEnv()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Invalid venue configuration")
	}

	server, err := venue.New(opts)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize venue")
	}

	for _, account := range opts.Accounts {
		key, err := server.Keys.IssueKey(account)
		if err != nil {
			zlog.Fatal().Err(err).Str("account", account).Msg("Failed to issue API key")
		}
		zlog.Info().Str("account", account).Str("api_key", key).Msg("API key issued")
	}

	processorCtx, processorCancel := context.WithCancel(context.Background())
	defer processorCancel()
	server.Start(processorCtx)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: server.Handler(),
	}

	go func() {
		zlog.Info().Str("port", port).Msg("Paper venue listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down venue...")
	processorCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx, srv); err != nil {
		zlog.Fatal().Err(err).Msg("Venue forced to shutdown")
	}

	zlog.Info().Msg("Venue exiting")
}

func optionsFromEnv() (venue.Options, error) {
	opts := venue.DefaultOptions()

	if v := os.Getenv("VENUE_SECRET"); v != "" {
		opts.Secret = v
	} else {
		zlog.Warn().Msg("VENUE_SECRET not set, using the development secret")
	}
	if v := os.Getenv("VENUE_DSN"); v != "" {
		opts.DSN = v
	}
	if v := os.Getenv("VENUE_ACCOUNTS"); v != "" {
		opts.Accounts = splitList(v)
	}
	if v := os.Getenv("VENUE_LISTINGS"); v != "" {
		listings, err := parseListings(opts.Exchange.ID, v)
		if err != nil {
			return opts, err
		}
		opts.Listings = listings
	}
	return opts, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseListings reads SYMBOL:PRICE pairs
func parseListings(venueID, v string) ([]paper.Listing, error) {
	var listings []paper.Listing
	for _, pair := range splitList(v) {
		symbol, priceStr, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("listing %q must be SYMBOL:PRICE", pair)
		}
		price, err := strconv.ParseInt(priceStr, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("listing %q has invalid price: %w", pair, err)
		}
		listings = append(listings, paper.Listing{Venue: venueID, Symbol: symbol, Price: price})
	}
	return listings, nil
}
