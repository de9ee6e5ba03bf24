// Package cli содержит команды консольного клиента PalmAstro.
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mmeshcher/palmastro/internal/config"
	"github.com/mmeshcher/palmastro/internal/credentials"
	"github.com/mmeshcher/palmastro/internal/storage"
)

var version = "dev"

// CLI хранит флаги и собранное приложение для выполняемой команды.
type CLI struct {
	debug       bool
	mock        bool
	storagePath string
	baseURL     string
	envFile     string
	jsonOutput  bool

	out   io.Writer
	store storage.Store
	cfg   *config.ClientConfig
	app   *app
}

// Option настраивает CLI. Используется в тестах для подмены окружения.
type Option func(*CLI)

// WithStore задаёт хранилище вместо файла.
func WithStore(st storage.Store) Option {
	return func(c *CLI) { c.store = st }
}

// WithConfig задаёт конфигурацию клиента вместо чтения окружения.
func WithConfig(cfg *config.ClientConfig) Option {
	return func(c *CLI) { c.cfg = cfg }
}

// NewRootCmd создаёт корневую команду palmastro.
func NewRootCmd(out io.Writer, opts ...Option) *cobra.Command {
	c := &CLI{out: out}
	for _, opt := range opts {
		opt(c)
	}

	root := &cobra.Command{
		Use:   "palmastro",
		Short: "Palm, astrology and numerology readings from the command line",
		Long: `palmastro drives the PalmAstro reading flows: palm analysis from an image,
step-by-step astrology readings and numerology calculations.
Mock mode is on by default; pass --mock=false to talk to a live backend.`,
		Version:           version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.app != nil {
				c.app.close()
			}
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.BoolVar(&c.debug, "debug", false, "verbose logging with HTTP dumps")
	flags.BoolVar(&c.mock, "mock", true, "use simulated responses instead of the backend")
	flags.StringVar(&c.storagePath, "storage", "", "path to the credentials file (default ~/.palmastro/storage.yaml)")
	flags.StringVar(&c.baseURL, "base-url", "", "backend API base URL")
	flags.StringVar(&c.envFile, "env-file", ".env", "optional dotenv file with PALMASTRO_* variables")
	flags.BoolVar(&c.jsonOutput, "json", false, "print results as JSON")

	root.AddCommand(
		c.loginCmd(),
		c.signupCmd(),
		c.logoutCmd(),
		c.planCmd(),
		c.profileCmd(),
		c.dashboardCmd(),
		c.palmCmd(),
		c.astrologyCmd(),
		c.numerologyCmd(),
		c.historyCmd(),
		c.predictionsCmd(),
		c.saveCmd(),
		c.settingsCmd(),
	)

	return root
}

// Execute запускает CLI. Вызывается из main.
func Execute() {
	if err := NewRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup собирает конфигурацию в порядке: окружение, сохранённые настройки, флаги.
func (c *CLI) setup(cmd *cobra.Command, args []string) error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", c.envFile, err)
		}
	}

	cfg := c.cfg
	if cfg == nil {
		loaded, err := config.LoadClient()
		if err != nil {
			return err
		}
		cfg = loaded
	}

	st := c.store
	if st == nil {
		path := c.storagePath
		if path == "" {
			path = cfg.StoragePath
		}
		if path == "" {
			def, err := storage.DefaultPath()
			if err != nil {
				return err
			}
			path = def
		}
		fs, err := storage.NewFileStore(path)
		if err != nil {
			return err
		}
		st = fs
	}

	settings, err := credentials.NewSession(st).Settings()
	if err != nil {
		return err
	}
	if settings.UseMockAPI != nil {
		cfg.UseMockAPI = *settings.UseMockAPI
	}

	flags := cmd.Flags()
	if flags.Changed("mock") {
		cfg.UseMockAPI = c.mock
	}
	if flags.Changed("base-url") {
		cfg.BaseURL = c.baseURL
	}
	if flags.Changed("debug") {
		cfg.Debug = c.debug
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := newLogger(cfg.Debug)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	a, err := newApp(cfg, st, logger, c.out)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}
