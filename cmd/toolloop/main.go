// Command toolloop answers requests with a language model that can call the built-in tools.
//
// Usage:
//
//	toolloop [options] [request...]
//
// With a request on the command line it answers once and exits. With --demo it runs the example
// requests in sequence. Otherwise it reads requests from an interactive prompt.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"
	"github.com/jessevdk/go-flags"
	"github.com/rickchristie/toolloop"
	"github.com/rickchristie/toolloop/config"
	"github.com/rickchristie/toolloop/loggers"
	"github.com/rickchristie/toolloop/loop"
	"github.com/rickchristie/toolloop/models"
	"github.com/rickchristie/toolloop/toolchain"
	"github.com/rickchristie/toolloop/tools"
	"gopkg.in/yaml.v3"
)

// demoRequests are run in order by --demo.
var demoRequests = []string{
	"What is 15 plus 25?",
	"What time is it now?",
	"Roll three dice",
	"What is the weather in Bratislava?",
	"Calculate 100 divided by 5, then multiply the result by 3, and roll that many dice",
}

// options is interpreted by github.com/jessevdk/go-flags.
type options struct {
	Config        string `short:"f" long:"config" description:"config YAML path"`
	Provider      string `short:"p" long:"provider" description:"model provider (gemini, ollama, openai, github)"`
	Model         string `short:"m" long:"model" description:"model name"`
	MaxIterations int    `long:"max-iterations" description:"model queries allowed per request"`
	LogLevel      string `long:"log-level" description:"trace, debug, info, warn, error"`
	Trace         bool   `short:"t" long:"trace" description:"print a round-by-round trace of each run"`
	Demo          bool   `long:"demo" description:"run the example requests"`
	ListTools     bool   `long:"list-tools" description:"print the tool schemas and exit"`
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	a := &app{
		stdout: stdout,
		stderr: stderr,
		getenv: os.Getenv,
		newModel: func(ctx context.Context, cfg config.ModelConfig, logger *slog.Logger) (toolloop.Model, error) {
			m, err := models.FromConfig(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return m.WithLogger(logger), nil
		},
	}
	return a.run(ctx, args)
}

// app holds the process boundary so tests can swap the environment and the model backend.
type app struct {
	stdout   io.Writer
	stderr   io.Writer
	getenv   func(string) string
	newModel func(context.Context, config.ModelConfig, *slog.Logger) (toolloop.Model, error)
}

func (a *app) run(ctx context.Context, args []string) error {
	var opts options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Usage = "[options] [request...]"
	rest, err := parser.ParseArgs(args)
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			fmt.Fprintln(a.stdout, flagsErr.Message)
			return nil
		}
		return err
	}

	registry := toolchain.NewRegistry()
	if err := tools.New().Register(registry); err != nil {
		return err
	}

	if opts.ListTools {
		return listTools(a.stdout, registry)
	}

	cfg, err := a.loadConfig(opts)
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(a.stderr, cfg.Logging)
	if err != nil {
		return err
	}

	model, err := a.newModel(ctx, cfg.Model, logger)
	if err != nil {
		return err
	}

	ctrl := loop.New(model, registry, loop.Config{
		Model:            cfg.Model.Name,
		MaxIterations:    cfg.Loop.MaxIterations,
		Temperature:      cfg.Loop.Temperature,
		ModelTimeout:     cfg.Loop.ModelTimeout,
		ToolTimeout:      cfg.Loop.ToolTimeout,
		MaxParallelTools: cfg.Loop.MaxParallelTools,
		SystemPrompt:     cfg.Loop.SystemPrompt,
	}).WithLogger(logger)
	if opts.Trace {
		ctrl.RegisterHook(loggers.NewTraceHookWithWriter(a.stdout))
	}

	logger.Info("toolloop ready",
		"provider", cfg.Model.Provider,
		"model", cfg.Model.Name,
		"tools", registry.Len(),
	)

	switch {
	case opts.Demo:
		return a.runDemo(ctx, ctrl)
	case len(rest) > 0:
		return a.answer(ctx, ctrl, strings.Join(rest, " "))
	default:
		return a.interactive(ctx, ctrl)
	}
}

// loadConfig resolves configuration: defaults, the config file when one is found, the
// environment, then flags.
func (a *app) loadConfig(opts options) (*config.Config, error) {
	cfg := config.Default()

	path, err := config.FindConfig(opts.Config)
	switch {
	case err == nil:
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	case opts.Config != "":
		return nil, err
	}

	// Flags take precedence over the environment.
	cfg.ApplyEnv(func(key string) string {
		switch {
		case key == "TOOLLOOP_PROVIDER" && opts.Provider != "":
			return opts.Provider
		case key == "TOOLLOOP_MODEL" && opts.Model != "":
			return opts.Model
		case key == "TOOLLOOP_LOG_LEVEL" && opts.LogLevel != "":
			return opts.LogLevel
		}
		return a.getenv(key)
	})
	if opts.MaxIterations > 0 {
		cfg.Loop.MaxIterations = opts.MaxIterations
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// answer runs one request and prints the outcome. Exhaustion is reported but is not an error.
func (a *app) answer(ctx context.Context, ctrl *loop.Controller, request string) error {
	result, err := ctrl.Run(ctx, request)
	switch result.Outcome {
	case toolloop.OutcomeFinalAnswer:
		fmt.Fprintln(a.stdout, result.Text)
		return nil
	case toolloop.OutcomeExhausted:
		fmt.Fprintf(a.stdout, "No final answer within %d rounds.\n", result.Rounds)
		return nil
	default:
		return err
	}
}

func (a *app) runDemo(ctx context.Context, ctrl *loop.Controller) error {
	fmt.Fprintln(a.stdout, "Available tools:")
	for _, name := range ctrl.Registry().Names() {
		fmt.Fprintf(a.stdout, "  - %s\n", name)
	}

	for i, request := range demoRequests {
		fmt.Fprintf(a.stdout, "\n[%d/%d] %s\n", i+1, len(demoRequests), request)
		if err := a.answer(ctx, ctrl, request); err != nil {
			if errors.Is(err, toolloop.ErrCancelled) {
				return err
			}
			fmt.Fprintf(a.stdout, "Error: %v\n", err)
		}
	}
	return nil
}

func (a *app) interactive(ctx context.Context, ctrl *loop.Controller) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "> ",
		Stdout:          a.stdout,
		Stderr:          a.stderr,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(a.stdout, "Ask anything. Type 'exit' or press Ctrl-D to quit.")
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read input: %w", err)
		}

		request := strings.TrimSpace(line)
		switch request {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		if err := a.answer(ctx, ctrl, request); err != nil {
			if errors.Is(err, toolloop.ErrCancelled) {
				return nil
			}
			fmt.Fprintf(a.stdout, "Error: %v\n", err)
		}
	}
}

// toolListing is the YAML shape printed by --list-tools.
type toolListing struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Parameters  map[string]any `yaml:"parameters,omitempty"`
}

func listTools(w io.Writer, registry *toolchain.Registry) error {
	specs := registry.Specs()
	listing := make([]toolListing, len(specs))
	for i, spec := range specs {
		listing[i] = toolListing{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Parameters,
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(listing); err != nil {
		return err
	}
	return enc.Close()
}
