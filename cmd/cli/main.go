package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/habahaba/roundup-savings/internal/advisor"
	"github.com/habahaba/roundup-savings/internal/config"
	"github.com/habahaba/roundup-savings/internal/domain"
	"github.com/habahaba/roundup-savings/internal/export"
	"github.com/habahaba/roundup-savings/internal/logger"
	"github.com/habahaba/roundup-savings/internal/payments/paystack"
	"github.com/habahaba/roundup-savings/internal/roundup"
	"github.com/habahaba/roundup-savings/internal/savings"
	"github.com/habahaba/roundup-savings/internal/storage"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Invalid configuration")
	}
	log := logger.NewWithLevel(cfg.LogLevel, cfg.LogFormat)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "decide":
		runDecide(cfg, log)
	case "simulate":
		runSimulate(cfg, log)
	case "history":
		runHistory(cfg, log)
	case "export":
		runExport(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Roundup Savings CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  decide    Compute the roundup for one amount without recording it")
	fmt.Println("  simulate  Record a series of simulated spends and show the decisions")
	fmt.Println("  history   Show a user's savings history, profile and balance")
	fmt.Println("  export    Write a user's CSV statement to a file or Cloud Storage")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// newEngine builds the decision engine, delegating to Gemini when an API key
// is configured.
func newEngine(ctx context.Context, cfg *config.Config, sink advisor.OutputSink, log zerolog.Logger) *roundup.Engine {
	opts := []roundup.Option{roundup.WithLogger(logger.Component(log, "roundup"))}
	if !cfg.AdvisorConfigured() {
		return roundup.NewEngine(opts...)
	}

	completer, err := advisor.NewGeminiCompleter(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Warn().Err(err).Msg("Gemini unavailable, deciding locally")
		return roundup.NewEngine(opts...)
	}
	advisorOpts := []advisor.Option{
		advisor.WithRatePerMinute(cfg.AdvisorRatePerMinute),
		advisor.WithLogger(logger.Component(log, "advisor")),
	}
	if sink != nil {
		advisorOpts = append(advisorOpts, advisor.WithOutputSink(sink))
	}
	opts = append(opts, roundup.WithAdvisor(advisor.NewProvider(completer, advisorOpts...), cfg.AdvisorTimeout))
	return roundup.NewEngine(opts...)
}

func openService(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*savings.Service, *storage.Backend) {
	backend, err := storage.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("Failed to open store")
	}
	engine := newEngine(ctx, cfg, backend.AdvisorSink, log)
	svc := savings.NewService(backend.Store, engine, paystack.NewSandbox(logger.Component(log, "sandbox")),
		savings.WithLogger(logger.Component(log, "savings")),
	)
	return svc, backend
}

func runDecide(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("decide", flag.ExitOnError)
	amountStr := fs.String("amount", "", "Spend amount in KES (required)")
	userID := fs.String("user-id", "", "Use this user's history for the profile")
	assisted := fs.Bool("assisted", cfg.AIEnabled, "Use assisted mode")
	fs.Parse(os.Args[2:])

	amount, err := decimal.NewFromString(*amountStr)
	if err != nil {
		log.Fatal().Err(err).Str("amount", *amountStr).Msg("Error: --amount must be a number")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc, backend := openService(ctx, cfg, log)
	defer backend.Close()

	d, profile, err := svc.Preview(ctx, *userID, amount, *assisted)
	if err != nil {
		log.Fatal().Err(err).Msg("Decision failed")
	}

	fmt.Println("\n=== Roundup Decision ===")
	printDecision(amount, d)
	printProfile(profile)
}

func runSimulate(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	userID := fs.String("user-id", "simulated-user", "User to record the spends for")
	amountsStr := fs.String("amounts", "", "Comma-separated spend amounts in KES (required)")
	assisted := fs.Bool("assisted", cfg.AIEnabled, "Use assisted mode")
	fs.Parse(os.Args[2:])

	amounts, err := parseAmounts(*amountsStr)
	if err != nil {
		log.Fatal().Err(err).Msg("Error: invalid --amounts")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc, backend := openService(ctx, cfg, log)
	defer backend.Close()

	for i, amount := range amounts {
		res, err := svc.ProcessSpend(ctx, savings.SpendRequest{
			UserID:    *userID,
			Amount:    amount,
			Assisted:  *assisted,
			Simulated: true,
		})
		if err != nil {
			log.Fatal().Err(err).Str("amount", amount.String()).Msg("Simulated spend failed")
		}
		fmt.Printf("\n%d. ", i+1)
		printDecision(amount, res.Decision)
	}

	profile, err := svc.Profile(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load profile")
	}
	fmt.Println()
	printProfile(profile)
}

func runHistory(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	userID := fs.String("user-id", "", "User to inspect (required)")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: --user-id is required")
	}

	ctx := logger.WithContext(context.Background(), log)
	svc, backend := openService(ctx, cfg, log)
	defer backend.Close()

	history, err := svc.History(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load history")
	}

	fmt.Printf("\n=== Transactions (%d) ===\n", len(history))
	for i, tx := range history {
		fmt.Printf("\n%d. %s  %s  %s\n", i+1, tx.CreatedAt.Format(time.RFC3339), tx.Kind, tx.Status)
		if tx.Kind == domain.KindRoundup {
			fmt.Printf("   Spent:   %s %s (rounded to %s)\n", tx.AmountSpent.StringFixed(2), domain.Currency, tx.RoundedTo.StringFixed(2))
		}
		fmt.Printf("   Saved:   %s %s\n", tx.AmountSaved.StringFixed(2), domain.Currency)
		fmt.Printf("   Reason:  %s\n", tx.Rationale)
		if tx.Reference != "" {
			fmt.Printf("   Ref:     %s\n", tx.Reference)
		}
	}

	profile, err := svc.Profile(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load profile")
	}
	balance, err := svc.Balance(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load balance")
	}
	fmt.Println()
	printProfile(profile)
	fmt.Printf("Balance:      %s %s\n\n", balance.StringFixed(2), domain.Currency)
}

func runExport(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	userID := fs.String("user-id", "", "User to export (required)")
	dest := fs.String("dest", cfg.ExportBucket, "gs://bucket/prefix to upload to (or set EXPORT_BUCKET env)")
	file := fs.String("file", "", "Write the CSV to this local path instead (- for stdout)")
	fs.Parse(os.Args[2:])

	if *userID == "" {
		log.Fatal().Msg("Error: --user-id is required")
	}
	if *dest == "" && *file == "" {
		log.Fatal().Msg("Error: one of --dest or --file is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	svc, backend := openService(ctx, cfg, log)
	defer backend.Close()

	history, err := svc.History(ctx, *userID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load history")
	}

	if *file != "" {
		out := os.Stdout
		if *file != "-" {
			f, err := os.Create(*file)
			if err != nil {
				log.Fatal().Err(err).Str("file", *file).Msg("Failed to create file")
			}
			defer f.Close()
			out = f
		}
		if err := export.WriteStatementCSV(out, history); err != nil {
			log.Fatal().Err(err).Msg("Export failed")
		}
		if *file != "-" {
			fmt.Printf("Wrote %d records to %s\n", len(history), *file)
		}
		return
	}

	gcs, err := export.NewGCSObjectStore(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer gcs.Close()

	exporter, err := export.NewExporter(gcs, *dest)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid destination")
	}
	uri, err := exporter.UploadStatement(ctx, *userID, history)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}
	fmt.Printf("Uploaded %d records to %s\n", len(history), uri)
}

func parseAmounts(s string) ([]decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("no amounts given")
	}
	var out []decimal.Decimal
	for _, part := range strings.Split(s, ",") {
		d, err := decimal.NewFromString(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("amount %q: %w", part, err)
		}
		out = append(out, d)
	}
	return out, nil
}

func printDecision(amount decimal.Decimal, d domain.RoundupDecision) {
	fmt.Printf("Spend %s %s -> round to %s, save %s [%s]\n",
		amount.StringFixed(2), domain.Currency, d.RoundTo.StringFixed(2), d.Saved.StringFixed(2), d.Source)
	fmt.Printf("   %s\n", d.Reason)
}

func printProfile(p domain.SpendingProfile) {
	fmt.Println("=== Spending Profile ===")
	fmt.Printf("Transactions: %d\n", p.Count)
	fmt.Printf("Average:      %s %s\n", p.AverageTransaction.StringFixed(2), domain.Currency)
	fmt.Printf("Total spent:  %s %s\n", p.TotalSpent.StringFixed(2), domain.Currency)
	fmt.Printf("Total saved:  %s %s\n", p.TotalSaved.StringFixed(2), domain.Currency)
	fmt.Printf("Savings rate: %s%%\n", p.SavingsRateDisplay().String())
}
