package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/ksred/klear-accumulate/internal/client"
	"github.com/ksred/klear-accumulate/internal/clock"
	"github.com/ksred/klear-accumulate/internal/config"
	"github.com/ksred/klear-accumulate/internal/logging"
	"github.com/ksred/klear-accumulate/internal/paper"
	"github.com/ksred/klear-accumulate/internal/quote"
	"github.com/ksred/klear-accumulate/internal/strategy"
	"github.com/ksred/klear-accumulate/internal/trading"
	"github.com/ksred/klear-accumulate/internal/venue"
)

var symbols = []struct {
	symbol string
	price  int64
}{
	{"FOOBAR", 5000},
	{"AAPL", 19000},
	{"MSFT", 41000},
	{"META", 50000},
	{"AMZN", 18000},
}

var rootCmd = &cobra.Command{
	Use:   "simulation",
	Short: "Dry run accumulation strategies against an in-process paper venue",
	RunE:  run,
}

func init() {
	flags := rootCmd.Flags()
	flags.Int("workers", 3, "Concurrent strategies, one stock and account each")
	flags.Int64("target", 200, "Net shares each strategy accumulates")
	flags.Duration("cycle", 100*time.Millisecond, "Buy cycle duration")
	flags.Duration("poll", 20*time.Millisecond, "Order status poll interval")
	flags.Duration("tick", 25*time.Millisecond, "Venue matching interval")
	flags.Bool("debug", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		zlog.Fatal().Err(err).Msg("simulation failed")
	}
}

type result struct {
	account string
	symbol  string
	state   strategy.State
	stats   *client.Stats
	err     error
}

func run(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	workers, _ := flags.GetInt("workers")
	target, _ := flags.GetInt64("target")
	cycle, _ := flags.GetDuration("cycle")
	poll, _ := flags.GetDuration("poll")
	tick, _ := flags.GetDuration("tick")
	debug, _ := flags.GetBool("debug")

	if workers < 1 || workers > len(symbols) {
		return fmt.Errorf("workers must be between 1 and %d", len(symbols))
	}

	logCfg := config.Default().Log
	if debug {
		logCfg.Level = "debug"
	}
	closer, err := logging.Setup(logCfg)
	if err != nil {
		return err
	}
	defer closer.Close()
	gin.SetMode(gin.ReleaseMode)

	opts := venue.DefaultOptions()
	opts.TickInterval = tick
	opts.Listings = nil
	opts.Accounts = nil
	for i := 0; i < workers; i++ {
		opts.Listings = append(opts.Listings, paper.Listing{Venue: opts.Exchange.ID, Symbol: symbols[i].symbol, Price: symbols[i].price})
		opts.Accounts = append(opts.Accounts, fmt.Sprintf("SIM%06d", i+1))
	}

	server, err := venue.New(opts)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	server.Start(ctx)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	srv := &http.Server{Handler: server.Handler()}
	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			zlog.Error().Err(err).Msg("paper venue stopped")
		}
	}()
	baseURL := "http://" + listener.Addr().String()
	zlog.Info().Str("base_url", baseURL).Int("workers", workers).Msg("paper venue started")

	results := make([]result, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res := &results[i]
			res.account = opts.Accounts[i]
			res.symbol = opts.Listings[i].Symbol

			key, err := server.Keys.IssueKey(res.account)
			if err != nil {
				res.err = err
				return
			}

			cfg := config.Default()
			cfg.Venue.BaseURL = baseURL
			cfg.Venue.APIKey = key
			cfg.Venue.Account = res.account
			cfg.Venue.Venue = opts.Exchange.ID
			cfg.Venue.Symbol = res.symbol
			cfg.Strategy.Target = target
			cfg.Strategy.CycleDuration = cycle
			cfg.Monitor.Poll = poll
			cfg.Sampler.SampleDelay = poll
			res.state, res.stats, res.err = accumulate(ctx, cfg)
		}(i)
	}
	wg.Wait()

	var errs error
	for _, res := range results {
		fmt.Printf("\n%s %s\n", res.account, res.symbol)
		res.state.Render(os.Stdout)
		if res.stats != nil {
			res.stats.Render(os.Stdout)
		}
		if res.err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", res.account, res.err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return multierr.Append(errs, server.Shutdown(shutdownCtx, srv))
}

func accumulate(ctx context.Context, cfg config.Config) (strategy.State, *client.Stats, error) {
	if err := cfg.Validate(); err != nil {
		return strategy.State{}, nil, err
	}

	c, err := client.New(cfg.ClientConfig())
	if err != nil {
		return strategy.State{}, nil, err
	}

	clk := clock.Real{}
	s, err := strategy.New(
		quote.NewSampler(c, clk),
		trading.NewGateway(c, cfg.Venue.Account, cfg.Venue.Venue, cfg.Venue.Symbol),
		trading.NewMonitor(c, clk, cfg.Monitor.Poll, cfg.Monitor.Checks),
		clk,
		cfg.Params(),
	)
	if err != nil {
		return strategy.State{}, c.Stats(), err
	}

	state, err := s.Run(ctx)
	return state, c.Stats(), err
}
