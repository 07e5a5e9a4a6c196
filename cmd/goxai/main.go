package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/goxai/internal/app"
	"github.com/hyperifyio/goxai/internal/xai"
)

const usage = `usage: goxai [flags] <command> [args]

commands:
  models                 list the registered xAI models
  prompt -m <id> <text>  run a prompt against a model
  refresh                discard the cached catalog and download it again
  version                print build information

flags:
`

func main() {
	// Logging setup
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	fs := flag.NewFlagSet("goxai", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usage)
		fs.PrintDefaults()
	}
	var (
		configPath  string
		envFiles    string
		key         string
		apiBase     string
		modelsURL   string
		modelsAge   time.Duration
		cacheStrict bool
		verbose     bool
	)
	fs.StringVar(&configPath, "config", "", "Path to YAML or JSON config file (default $"+app.EnvConfigPath+")")
	fs.StringVar(&envFiles, "env", ".env", "Comma-separated dotenv files to load before reading the environment")
	fs.StringVar(&key, "key", "", "xAI API key (overrides keys.json and LLM_XAI_KEY)")
	fs.StringVar(&apiBase, "api.base", "", "Provider API base URL (default "+xai.DefaultAPIBase+")")
	fs.StringVar(&modelsURL, "models.url", "", "Model catalog URL (default "+xai.DefaultModelsURL+")")
	fs.DurationVar(&modelsAge, "models.maxAge", 0, "How long the cached catalog stays fresh (default 1h)")
	fs.BoolVar(&cacheStrict, "cache.strictPerms", false, "Restrict cache permissions (0700 dirs, 0600 files)")
	fs.BoolVar(&verbose, "v", false, "Verbose logging")
	_ = fs.Parse(os.Args[1:])

	cfg, err := loadConfig(splitList(envFiles), configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "key":
			cfg.APIKey = key
		case "api.base":
			cfg.APIBase = apiBase
		case "models.url":
			cfg.ModelsURL = modelsURL
		case "models.maxAge":
			cfg.ModelsMaxAge = modelsAge
		case "cache.strictPerms":
			cfg.CacheStrictPerms = cacheStrict
		case "v":
			cfg.Verbose = verbose
		}
	})

	if cfg.Verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg, fs.Args(), os.Stdout); err != nil {
		stop()
		if errors.Is(err, errUsage) {
			fs.Usage()
			os.Exit(2)
		}
		log.Error().Err(err).Msg("run failed")
		os.Exit(1)
	}
}

var errUsage = errors.New("usage")

// loadConfig loads dotenv files, then the config file, then applies env
// overrides. Flags are applied by the caller. An empty configPath falls back
// to $GOXAI_CONFIG, which may come from a dotenv file.
func loadConfig(envFiles []string, configPath string) (app.Config, error) {
	var cfg app.Config
	if err := app.LoadEnvFiles(envFiles...); err != nil {
		return cfg, fmt.Errorf("load env files: %w", err)
	}
	if strings.TrimSpace(configPath) == "" {
		configPath = os.Getenv(app.EnvConfigPath)
	}
	if strings.TrimSpace(configPath) != "" {
		fc, err := app.LoadConfigFile(configPath)
		if err != nil {
			return cfg, fmt.Errorf("config file %s: %w", configPath, err)
		}
		app.ApplyFileConfig(&cfg, fc)
	}
	app.ApplyEnvOverrides(&cfg)
	return cfg, nil
}

func run(ctx context.Context, cfg app.Config, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	if cmd == "version" {
		fmt.Fprintf(stdout, "goxai %s (commit %s, built %s)\n", app.BuildVersion, app.BuildCommit, app.BuildDate)
		return nil
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer a.Close()

	switch cmd {
	case "models":
		return runModels(ctx, a, rest, stdout)
	case "prompt":
		return runPrompt(ctx, a, rest, stdout)
	case "refresh":
		n, err := a.Refresh(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(stdout, "%d models cached at %s\n", n, a.CachePath())
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func runModels(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	withOptions := fs.Bool("options", false, "Also list the options each model accepts")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	if !a.HasKey() {
		log.Warn().Msg("no xai key configured; no models registered")
	}
	models, err := a.Models(ctx)
	if err != nil {
		return err
	}
	for _, m := range models {
		fmt.Fprintln(stdout, m.String())
		if *withOptions {
			fmt.Fprintf(stdout, "  options: %s\n", strings.Join(xai.OptionKeys(), ", "))
		}
	}
	return nil
}

func runPrompt(ctx context.Context, a *app.App, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("prompt", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	opts := optionFlag{}
	model := fs.String("m", "", "Model id, e.g. xAI/grok-3")
	system := fs.String("s", "", "System prompt")
	noStream := fs.Bool("no-stream", false, "Wait for the full response instead of streaming")
	fs.Var(opts, "o", "Model option key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	text := strings.Join(fs.Args(), " ")
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: prompt text is required", errUsage)
	}
	if _, err := a.Prompt(ctx, app.PromptRequest{
		Model:    *model,
		Text:     text,
		System:   *system,
		Options:  opts,
		NoStream: *noStream,
	}, stdout); err != nil {
		return err
	}
	fmt.Fprintln(stdout)
	return nil
}

// optionFlag collects repeated -o key=value pairs.
type optionFlag map[string]string

func (o optionFlag) String() string {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+o[k])
	}
	return strings.Join(parts, ",")
}

func (o optionFlag) Set(s string) error {
	k, v, ok := strings.Cut(s, "=")
	k = strings.TrimSpace(k)
	if !ok || k == "" {
		return fmt.Errorf("option %q: want key=value", s)
	}
	o[k] = strings.TrimSpace(v)
	return nil
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	list := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			list = append(list, v)
		}
	}
	return list
}
