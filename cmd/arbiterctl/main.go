// Package main is arbiterctl, a thin CLI that runs a single debate against
// stdout instead of SSE, reusing the same service layer as cmd/arbiter —
// grounded on original_source/backend/run_api.py's console-entry-point
// role and spec.md §6's "Exit codes (CLI variant)".
package main

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/arbiter-hq/arbiter/internal/billing"
	"github.com/arbiter-hq/arbiter/internal/config"
	"github.com/arbiter-hq/arbiter/internal/debate"
	"github.com/arbiter-hq/arbiter/internal/migrations"
	"github.com/arbiter-hq/arbiter/internal/pricing"
	"github.com/arbiter-hq/arbiter/internal/provider"
	"github.com/arbiter-hq/arbiter/internal/tokencount"
	"github.com/arbiter-hq/arbiter/internal/usage"
)

// Exit codes per spec.md §6.
const (
	exitSuccess       = 0
	exitConfigOrIOErr = 1
	exitNoPersonality = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		question         = flag.String("question", "", "the debate question")
		providerName     = flag.String("provider", "", "provider name (anthropic, google, openai, ...)")
		model            = flag.String("model", "", "model name")
		maxRounds        = flag.Int("max-rounds", 3, "maximum debate rounds")
		temperature      = flag.Float64("temperature", 0.7, "sampling temperature")
		personalitiesCSV = flag.String("personalities", "", "comma-separated personality names")
		includeSynthesis = flag.Bool("synthesis", true, "include a final synthesis round")
		configPath       = flag.String("config", "config.yaml", "path to config.yaml")
	)
	flag.Parse()

	if *question == "" || *providerName == "" || *model == "" {
		fmt.Fprintln(os.Stderr, "arbiterctl: -question, -provider and -model are required")
		return exitConfigOrIOErr
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arbiterctl: failed to load config: %v\n", err)
		return exitConfigOrIOErr
	}

	prompts := debate.NewPromptLibrary("prompts")
	if err := prompts.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "arbiterctl: failed to load prompt library: %v\n", err)
		return exitConfigOrIOErr
	}
	if len(prompts.List(true)) == 0 {
		fmt.Fprintln(os.Stderr, "arbiterctl: no personalities available")
		return exitNoPersonality
	}

	personalities := splitCSV(*personalitiesCSV)
	if len(personalities) == 0 {
		for _, info := range prompts.List(true) {
			personalities = append(personalities, info.Name)
		}
	}

	settings, err := debate.NewSettings(*maxRounds, *temperature, personalities, *includeSynthesis)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arbiterctl: invalid settings: %v\n", err)
		return exitConfigOrIOErr
	}

	staticPricing, err := pricing.LoadStaticTable(cfg.Pricing.StaticTablePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arbiterctl: failed to load pricing table: %v\n", err)
		return exitConfigOrIOErr
	}
	resolver := pricing.NewResolver(staticPricing, nil, nil)
	recorder := usage.NewRecorder(usage.NewMemoryStore(), resolver)

	store, err := buildDebateStore(cfg.Database.DSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arbiterctl: failed to set up debate store: %v\n", err)
		return exitConfigOrIOErr
	}

	svc := debate.NewService(
		store,
		billing.NewMemoryLedger(),
		recorder,
		tokencount.NewCounter(),
		provider.NewFactory(cfg.Providers, http.DefaultClient),
		prompts,
	)

	const cliUser = "arbiterctl"
	ctx := context.Background()

	d, err := svc.Create(ctx, debate.Draft{
		Owner:    cliUser,
		Question: *question,
		Provider: *providerName,
		Model:    *model,
		Settings: settings,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "arbiterctl: failed to create debate: %v\n", err)
		return exitConfigOrIOErr
	}

	events, err := svc.StartStream(ctx, cliUser, d.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arbiterctl: failed to start debate: %v\n", err)
		return exitConfigOrIOErr
	}

	return drainToStdout(ctx, svc, cliUser, d.ID, events)
}

// drainToStdout prints each event as a JSON line and returns the process
// exit code once the debate reaches a terminal state.
func drainToStdout(ctx context.Context, svc *debate.Service, user string, id uuid.UUID, events <-chan debate.Event) int {
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	for ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintln(out, string(line))
		out.Flush()
	}

	final, err := svc.Get(ctx, user, id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "arbiterctl: failed to read final debate state: %v\n", err)
		return exitConfigOrIOErr
	}

	if final.Status == debate.StatusFailed {
		msg := final.Error
		if msg == "" {
			msg = "debate failed"
		}
		fmt.Fprintf(os.Stderr, "arbiterctl: %s\n", msg)
		return exitConfigOrIOErr
	}

	return exitSuccess
}

// buildDebateStore mirrors cmd/arbiter's store selection so arbiterctl
// exercises the same persisted schema a local Postgres DSN would use in
// the server: a blank dsn keeps the in-memory store, a configured one
// runs the embedded migrations and serves off debate.SQLStore.
func buildDebateStore(dsn string) (debate.Store, error) {
	if dsn == "" {
		return debate.NewMemoryStore(), nil
	}

	migrationDB, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening migration connection: %w", err)
	}
	defer migrationDB.Close()
	if err := migrations.Up(migrationDB); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	gormDB, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening gorm connection: %w", err)
	}
	return debate.NewSQLStore(gormDB)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
