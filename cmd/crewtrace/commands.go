package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/germanamz/crewtrace/cmd/crewtrace/internal/templates"
	"github.com/germanamz/crewtrace/pkg/engine"
	"github.com/germanamz/crewtrace/pkg/modeladapter/usage"
	"github.com/germanamz/crewtrace/pkg/probe"
	"github.com/germanamz/crewtrace/pkg/report"
	"github.com/germanamz/crewtrace/pkg/tracker"
)

const defaultTopic = "AI LLMs"

type options struct {
	envFile    string
	configPath string
	template   string
	jsonOut    bool
	plain      bool
	force      bool
	args       []string
}

// env is the state shared by every command once flags are parsed.
type env struct {
	settings engine.Settings
	log      *slog.Logger
	ledger   *usage.Ledger
}

func setup(opts options, stderr io.Writer) (env, error) {
	if err := loadDotEnv(opts.envFile); err != nil {
		return env{}, err
	}

	s, invalid := engine.LoadSettings()

	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: s.LogLevel}))
	slog.SetDefault(log)

	if invalid != nil {
		log.Warn("ignoring invalid settings, using defaults", "error", invalid)
	}

	return env{settings: s, log: log, ledger: usage.NewLedger()}, nil
}

// loadDotEnv loads environment variables from path. A missing file is not an
// error.
func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// loadCrew resolves the crew configuration: explicit -config, then
// -template, then the default embedded crew.
func loadCrew(opts options) (engine.Config, error) {
	if opts.configPath != "" {
		return engine.LoadConfig(opts.configPath)
	}

	name := opts.template
	if name == "" {
		name = templates.Default
	}

	t, err := templates.Get(name)
	if err != nil {
		return engine.Config{}, err
	}

	return t.Config, nil
}

// newEngine builds the crew with every provider replaced by the intercepting
// one, so each agent call is recorded in e.ledger.
func newEngine(e env, opts options, extra ...engine.Option) (*engine.Engine, error) {
	cfg, err := loadCrew(opts)
	if err != nil {
		return nil, err
	}

	eopts := append([]engine.Option{
		engine.WithSettings(e.settings),
		engine.WithLedger(e.ledger),
		engine.WithLogger(e.log),
		engine.WithProviderOverride(engine.KindIntercept),
	}, extra...)

	return engine.New(cfg, eopts...)
}

func runReport(ctx context.Context, stdout, stderr io.Writer, opts options) error {
	e, err := setup(opts, stderr)
	if err != nil {
		return err
	}

	eng, err := newEngine(e, opts)
	if err != nil {
		return err
	}

	var prober *probe.Prober
	missing := e.settings.Require()
	if missing == nil {
		prober = probe.New(e.settings, e.ledger, e.log, probe.ReportMaxTokens)
	}

	info := report.Gather(ctx, eng, e.settings, prober)
	if missing != nil {
		info.ModelTest = &report.ModelTest{Requested: e.settings.Model, Error: missing.Error()}
	}

	if err := report.Render(stdout, info); err != nil {
		return err
	}

	if opts.jsonOut {
		return report.WriteJSON(stdout, info)
	}

	return nil
}

func runTrack(ctx context.Context, stdout, stderr io.Writer, opts options) error {
	e, err := setup(opts, stderr)
	if err != nil {
		return err
	}

	topic := defaultTopic
	if len(opts.args) > 0 {
		topic = strings.Join(opts.args, " ")
	}

	mt := tracker.New(e.ledger, e.log)

	eng, err := newEngine(e, opts, mt.Options()...)
	if err != nil {
		return err
	}

	var tr report.TrackResult

	if missing := e.settings.Require(); missing != nil {
		e.log.Error("crew run skipped", "error", missing)
		tr = report.TrackSkipped(eng, topic, missing)
	} else {
		fmt.Fprintf(stdout, "Starting crew run with usage tracking, topic %q\n", topic)

		sub := eng.Events().Subscribe(64, engine.EventTaskStart, engine.EventTaskEnd, engine.EventError)
		done := watchProgress(sub, stderr)

		tr = report.Track(ctx, eng, mt, topic, time.Now())

		eng.Events().Unsubscribe(sub)
		<-done
	}

	if err := report.RenderTrack(stdout, tr, report.Options{Plain: opts.plain}); err != nil {
		return err
	}

	if opts.jsonOut {
		return report.WriteJSON(stdout, tr)
	}

	return nil
}

// watchProgress prints task progress until sub is closed.
func watchProgress(sub *engine.Subscription, w io.Writer) <-chan struct{} {
	done := make(chan struct{})

	go func() {
		defer close(done)

		for ev := range sub.C {
			if line := ev.Progress(); line != "" {
				fmt.Fprintln(w, line)
			}
		}
	}()

	return done
}

func runCheck(ctx context.Context, stdout, stderr io.Writer, opts options) error {
	e, err := setup(opts, stderr)
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Connecting to endpoint: %s\n", e.settings.APIBase)
	fmt.Fprintln(stdout, "Sending a test request to determine the model name...")

	msg := probe.Check(ctx, e.settings, e.ledger, e.log)

	rule := strings.Repeat("=", 60)
	fmt.Fprintf(stdout, "\n%s\nACTUAL MODEL NAME CHECKER\n%s\n\n%s\n\n", rule, rule, msg)

	return nil
}

func runInit(stdout io.Writer, opts options) error {
	if opts.template == "list" {
		for _, m := range templates.List() {
			fmt.Fprintf(stdout, "  %-10s %s\n", m.Name, m.Description)
		}
		return nil
	}

	name := opts.template
	if name == "" {
		name = templates.Default
	}

	path := "crew.yaml"
	if len(opts.args) > 0 {
		path = opts.args[0]
	}

	t, err := templates.Get(name)
	if err != nil {
		return err
	}

	if err := templates.Apply(t, path, opts.force); err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Wrote %s crew to %s\n", t.Meta.Name, path)

	return nil
}
