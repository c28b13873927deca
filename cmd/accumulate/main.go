package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ksred/klear-accumulate/internal/client"
	"github.com/ksred/klear-accumulate/internal/clock"
	"github.com/ksred/klear-accumulate/internal/config"
	"github.com/ksred/klear-accumulate/internal/logging"
	"github.com/ksred/klear-accumulate/internal/quote"
	"github.com/ksred/klear-accumulate/internal/strategy"
	"github.com/ksred/klear-accumulate/internal/trading"
)

var rootCmd = &cobra.Command{
	Use:   "accumulate ACCOUNT VENUE STOCK",
	Short: "Accumulate a stock position in small limit orders",
	Long: `accumulate buys STOCK on VENUE for ACCOUNT in small limit orders priced at a
premium to the quoted price, periodically sells a smaller lot back, and stops
once the net position reaches the target.`,
	Args:          cobra.ExactArgs(3),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	def := config.Default()
	flags := rootCmd.Flags()

	flags.Int("delay", int(def.Strategy.CycleDuration/time.Second), "Seconds per buy cycle, including the fill wait")
	flags.Int64("target", def.Strategy.Target, "Net shares to accumulate")
	flags.Int64("buy-size", def.Strategy.BuySize, "Shares per buy order")
	flags.Int64("sell-size", def.Strategy.SellSize, "Shares per sell order, 0 disables selling")
	flags.Int("buys-per-sell", def.Strategy.BuysPerSell, "Productive buys between sells, 0 disables selling")
	flags.Float64("markup", def.Strategy.Markup, "Buy price multiplier over the reference price")
	flags.Float64("markdown", def.Strategy.Markdown, "Sell price multiplier under the reference price")
	flags.Duration("poll", def.Monitor.Poll, "Interval between order status checks")
	flags.Int("checks", def.Monitor.Checks, "Status checks before an order is cancelled")
	flags.Int("seed-samples", def.Sampler.SeedSamples, "Quotes averaged into the reference price")
	flags.Duration("sample-delay", def.Sampler.SampleDelay, "Delay between quote samples")
	flags.Int("reprice-every", def.Sampler.RepriceEvery, "Refresh the reference price after this many productive buys, 0 never")

	flags.String("config", "", "YAML config file")
	flags.String("key-file", "api_key.json", `JSON file holding {"api-key": "..."}`)
	flags.String("base-url", "", "Venue API base URL")
	flags.String("journal", "", "Write the cycle journal to this CSV file")
	flags.Bool("debug", false, "Enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		zlog.Fatal().Err(err).Msg("accumulation failed")
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}

	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		return err
	}
	defer closer.Close()

	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	venueClient, err := client.New(cfg.ClientConfig())
	if err != nil {
		return err
	}
	if err := venueClient.Heartbeat(ctx, cfg.Venue.Venue); err != nil {
		return err
	}

	clk := clock.Real{}
	journal := strategy.NewJournal()

	s, err := strategy.New(
		quote.NewSampler(venueClient, clk),
		trading.NewGateway(venueClient, cfg.Venue.Account, cfg.Venue.Venue, cfg.Venue.Symbol),
		trading.NewMonitor(venueClient, clk, cfg.Monitor.Poll, cfg.Monitor.Checks),
		clk,
		cfg.Params(),
		strategy.WithJournal(journal),
	)
	if err != nil {
		return err
	}

	state, runErr := s.Run(ctx)

	state.Render(os.Stdout)
	venueClient.Stats().Render(os.Stdout)

	if path, _ := cmd.Flags().GetString("journal"); path != "" {
		if err := journal.WriteCSV(path); err != nil {
			zlog.Error().Err(err).Str("path", path).Msg("failed to write journal")
		} else {
			zlog.Info().Str("path", path).Int("cycles", len(journal.Records())).Msg("journal written")
		}
	}

	return runErr
}

// loadConfig layers defaults, the config file, the environment, the key file
// and finally the command line
func loadConfig(cmd *cobra.Command, args []string) (config.Config, error) {
	flags := cmd.Flags()

	cfg := config.Default()
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if err := cfg.LoadEnv(); err != nil {
		return cfg, err
	}

	cfg.Venue.Account, cfg.Venue.Venue, cfg.Venue.Symbol = args[0], args[1], args[2]

	if flags.Changed("base-url") {
		cfg.Venue.BaseURL, _ = flags.GetString("base-url")
	}
	if cfg.Venue.APIKey == "" {
		keyFile, _ := flags.GetString("key-file")
		key, err := config.LoadAPIKey(keyFile)
		if err != nil {
			return cfg, err
		}
		cfg.Venue.APIKey = key
	}
	if debug, _ := flags.GetBool("debug"); debug {
		cfg.Log.Level = "debug"
	}

	if flags.Changed("delay") {
		delay, _ := flags.GetInt("delay")
		cfg.Strategy.CycleDuration = time.Duration(delay) * time.Second
	}
	if flags.Changed("target") {
		cfg.Strategy.Target, _ = flags.GetInt64("target")
	}
	if flags.Changed("buy-size") {
		cfg.Strategy.BuySize, _ = flags.GetInt64("buy-size")
	}
	if flags.Changed("sell-size") {
		cfg.Strategy.SellSize, _ = flags.GetInt64("sell-size")
	}
	if flags.Changed("buys-per-sell") {
		cfg.Strategy.BuysPerSell, _ = flags.GetInt("buys-per-sell")
	}
	if flags.Changed("markup") {
		cfg.Strategy.Markup, _ = flags.GetFloat64("markup")
	}
	if flags.Changed("markdown") {
		cfg.Strategy.Markdown, _ = flags.GetFloat64("markdown")
	}
	if flags.Changed("poll") {
		cfg.Monitor.Poll, _ = flags.GetDuration("poll")
	}
	if flags.Changed("checks") {
		cfg.Monitor.Checks, _ = flags.GetInt("checks")
	}
	if flags.Changed("seed-samples") {
		cfg.Sampler.SeedSamples, _ = flags.GetInt("seed-samples")
	}
	if flags.Changed("sample-delay") {
		cfg.Sampler.SampleDelay, _ = flags.GetDuration("sample-delay")
	}
	if flags.Changed("reprice-every") {
		cfg.Sampler.RepriceEvery, _ = flags.GetInt("reprice-every")
	}

	return cfg, nil
}
