package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/decred/slog"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"stakingctl/internal/chain"
	"stakingctl/internal/config"
	"stakingctl/internal/deploy"
	"stakingctl/internal/identity"
	"stakingctl/internal/journal"
	"stakingctl/internal/lifecycle"
	"stakingctl/internal/metrics"
	"stakingctl/internal/schedule"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(out io.Writer) *cli.App {
	return &cli.App{
		Name:   "stakingctl",
		Usage:  "operate staking contracts on Voi/Algorand",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "loglevel",
				Usage:   "debug, info, warn, error",
				EnvVars: []string{"LOG_LEVEL"},
				Value:   "info",
			},
		},
		Commands: []*cli.Command{runCommand, stagesCommand, healthCommand, scheduleCommand},
	}
}

type loggers struct {
	driver slog.Logger
	chain  slog.Logger
	deploy slog.Logger
}

func newLoggers(level string) (loggers, error) {
	lvl, ok := slog.LevelFromString(level)
	if !ok {
		return loggers{}, fmt.Errorf("unknown log level %q", level)
	}
	backend := slog.NewBackend(os.Stderr)
	l := loggers{
		driver: backend.Logger("STKG"),
		chain:  backend.Logger("CHAN"),
		deploy: backend.Logger("DPLY"),
	}
	for _, log := range []slog.Logger{l.driver, l.chain, l.deploy} {
		log.SetLevel(lvl)
	}
	return l, nil
}

var runCommand = &cli.Command{
	Name:  "run",
	Usage: "run lifecycle stages against the configured contract",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "stage",
			Usage: "stage to run (repeatable); defaults to STAGES",
		},
	},
	Action: func(c *cli.Context) error {
		ctx := c.Context
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		logs, err := newLoggers(c.String("loglevel"))
		if err != nil {
			return err
		}

		names := c.StringSlice("stage")
		if len(names) == 0 {
			names = cfg.Service.Stages
		}
		stages, err := lifecycle.ParseStages(names)
		if err != nil {
			return err
		}

		creator, owner, err := identity.ResolvePair(cfg.Identity.CreatorMnemonic, cfg.Identity.OwnerMnemonic)
		if err != nil {
			return err
		}
		if creator.Empty {
			logs.driver.Warnf("MN is not set; creator resolves to %s", creator)
		}
		if owner.Empty {
			logs.driver.Warnf("MN2 is not set; owner resolves to %s", owner)
		}

		clients, err := chain.NewClients(cfg.Node, cfg.Indexer)
		if err != nil {
			return err
		}
		store, closeStore, err := openJournal(ctx, cfg.Service)
		if err != nil {
			return fmt.Errorf("journal error: %w", err)
		}
		defer closeStore()

		reg := metrics.NewRegistry()
		submitter := chain.NewSubmitter(clients.Node, logs.chain, reg)
		runner := lifecycle.NewRunner(lifecycle.Deps{
			Node:      clients.Node,
			Submitter: submitter,
			Deployer:  deploy.NewDeployer(clients.Node, clients.Indexer, submitter, logs.deploy),
			Creator:   creator,
			Owner:     owner,
			Runbook:   cfg.Runbook,
			Journal:   store,
			Metrics:   reg,
			Log:       logs.driver,
		})
		logs.driver.Infof("Run %s: creator %s, owner %s, app %d, stages [%s]",
			runner.RunID(), creator, owner, runner.AppID(), joinStages(stages))

		outcomes, runErr := runner.Run(ctx, stages)
		if err := writeOutcomes(c.App.Writer, runner.RunID(), outcomes); err != nil {
			logs.driver.Errorf("Write outcomes: %v", err)
		}
		if url := cfg.Service.PushgatewayURL; url != "" {
			if err := reg.Push(url, runner.RunID()); err != nil {
				logs.driver.Warnf("Push metrics: %v", err)
			}
		}
		return runErr
	},
}

var stagesCommand = &cli.Command{
	Name:  "stages",
	Usage: "list stages in execution order",
	Action: func(c *cli.Context) error {
		for _, s := range lifecycle.Stages() {
			fmt.Fprintln(c.App.Writer, s)
		}
		return nil
	},
}

var healthCommand = &cli.Command{
	Name:  "health",
	Usage: "check node, indexer and journal connectivity",
	Action: func(c *cli.Context) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("config error: %w", err)
		}
		clients, err := chain.NewClients(cfg.Node, cfg.Indexer)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(c.Context, 10*time.Second)
		defer cancel()

		report := checkHealth(ctx, clients.Node, clients.Indexer, cfg.Service.JournalDSN)
		enc := json.NewEncoder(c.App.Writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
		if report.Status != "healthy" {
			return fmt.Errorf("health check degraded")
		}
		return nil
	},
}

type dependencyCheck struct {
	Connected bool    `json:"connected"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

type healthReport struct {
	Status    string           `json:"status"`
	Node      dependencyCheck  `json:"node"`
	Indexer   dependencyCheck  `json:"indexer"`
	Journal   *dependencyCheck `json:"journal,omitempty"`
	LastRound uint64           `json:"last_round"`
}

func timedCheck(ctx context.Context, fn func(context.Context) error) dependencyCheck {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	start := time.Now()
	if err := fn(ctx); err != nil {
		return dependencyCheck{Error: err.Error()}
	}
	return dependencyCheck{Connected: true, LatencyMs: float64(time.Since(start).Microseconds()) / 1000.0}
}

// checkHealth checks every dependency concurrently.
func checkHealth(ctx context.Context, node chain.Node, idx chain.Indexer, journalDSN string) healthReport {
	var (
		report healthReport
		g      errgroup.Group
	)
	g.Go(func() error {
		report.Node = timedCheck(ctx, func(ctx context.Context) error {
			status, err := node.Status(ctx)
			report.LastRound = status.LastRound
			return err
		})
		return nil
	})
	g.Go(func() error {
		report.Indexer = timedCheck(ctx, idx.Health)
		return nil
	})
	if journalDSN != "" {
		g.Go(func() error {
			p := timedCheck(ctx, func(ctx context.Context) error {
				store, err := journal.NewPostgresStore(ctx, journalDSN)
				if err != nil {
					return err
				}
				defer store.Close()
				return store.Ping(ctx)
			})
			report.Journal = &p
			return nil
		})
	}
	_ = g.Wait()

	report.Status = "healthy"
	if !report.Node.Connected || !report.Indexer.Connected || (report.Journal != nil && !report.Journal.Connected) {
		report.Status = "degraded"
	}
	return report
}

var scheduleCommand = &cli.Command{
	Name:  "schedule",
	Usage: "print the minimum allowable balance over time as CSV",
	Flags: []cli.Flag{
		&cli.Uint64Flag{Name: "points", Usage: "airdrop points to convert into the principal"},
		&cli.Uint64Flag{Name: "principal", Usage: "principal in base units (overrides --points)"},
		&cli.Uint64Flag{Name: "period-seconds", Value: schedule.SecondsInMonth},
		&cli.Uint64Flag{Name: "vesting-delay", Value: 12},
		&cli.Uint64Flag{Name: "lockup-delay", Value: 12},
		&cli.Uint64Flag{Name: "step", Usage: "sample interval in seconds (default one period)"},
	},
	Action: func(c *cli.Context) error {
		params := schedule.Params{
			PeriodSeconds: c.Uint64("period-seconds"),
			VestingDelay:  c.Uint64("vesting-delay"),
			LockupDelay:   c.Uint64("lockup-delay"),
		}
		principal := c.Uint64("principal")
		if principal == 0 {
			principal = schedule.PointsToTokens(c.Uint64("points"))
		}
		if principal == 0 {
			return fmt.Errorf("one of --principal or --points is required")
		}
		step := c.Uint64("step")
		if step == 0 {
			step = params.PeriodSeconds
		}

		rows, err := schedule.Table(schedule.TableSpec{
			Params:    params,
			Principal: principal,
			Until:     (params.LockupDelay*schedule.MaxPeriod + params.VestingDelay + 1) * params.PeriodSeconds,
			Step:      step,
		})
		if err != nil {
			return err
		}
		return schedule.WriteCSV(c.App.Writer, rows)
	},
}

// openJournal picks Postgres when a DSN is set, then a JSON file, then
// memory.
func openJournal(ctx context.Context, svc config.ServiceConfig) (journal.Store, func(), error) {
	switch {
	case svc.JournalDSN != "":
		store, err := journal.NewPostgresStore(ctx, svc.JournalDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	case svc.JournalPath != "":
		store, err := journal.NewFileStore(svc.JournalPath)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return journal.NewMemoryStore(), func() {}, nil
	}
}

type outcomeView struct {
	Stage         string               `json:"stage"`
	AppID         uint64               `json:"appId"`
	Sender        string               `json:"sender,omitempty"`
	Success       bool                 `json:"success"`
	ReturnValue   interface{}          `json:"returnValue,omitempty"`
	Confirmations []chain.Confirmation `json:"confirmations,omitempty"`
	Created       bool                 `json:"created,omitempty"`
	Error         string               `json:"error,omitempty"`
}

func writeOutcomes(w io.Writer, runID string, outcomes []lifecycle.Outcome) error {
	views := make([]outcomeView, 0, len(outcomes))
	for _, o := range outcomes {
		v := outcomeView{
			Stage:         o.Stage.String(),
			AppID:         o.AppID,
			Success:       o.Result.Success && o.Error == "",
			ReturnValue:   o.Result.ReturnValue,
			Confirmations: o.Confirmations,
			Error:         o.Error,
		}
		if !o.Sender.IsZero() {
			v.Sender = o.Sender.String()
		}
		if o.Deployment != nil {
			v.Created = o.Deployment.Created
		}
		views = append(views, v)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(map[string]interface{}{
		"runId":    runID,
		"outcomes": views,
	})
}

func joinStages(stages []lifecycle.Stage) string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.String()
	}
	return strings.Join(names, ",")
}
