// Package servecmder provides the serve command that runs the studio server.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/studio/pkg/config"
	"github.com/papercomputeco/studio/pkg/credentials"
	"github.com/papercomputeco/studio/pkg/eventstream"
	"github.com/papercomputeco/studio/pkg/eventstream/kafka"
	"github.com/papercomputeco/studio/pkg/eventstream/nop"
	"github.com/papercomputeco/studio/pkg/history"
	"github.com/papercomputeco/studio/pkg/history/inmemory"
	"github.com/papercomputeco/studio/pkg/history/postgres"
	"github.com/papercomputeco/studio/pkg/history/sqlite"
	"github.com/papercomputeco/studio/pkg/image"
	"github.com/papercomputeco/studio/pkg/logger"
	"github.com/papercomputeco/studio/pkg/relay"
	"github.com/papercomputeco/studio/server"
)

// APIKeyEnv names the environment variable holding the chat credential.
const APIKeyEnv = "GROQ_API_KEY"

type ServeCommander struct {
	flags     serveFlags
	configDir string

	envFile     string
	logFile     string
	pretty      bool
	jsonLogs    bool
	watchConfig bool
	disableMCP  bool
	debug       bool

	viper  *viper.Viper
	logger *slog.Logger
}

type serveFlags struct {
	listen        string
	chatUpstream  string
	chatModel     string
	imageUpstream string
	imageMaxCount int
	sqlitePath    string
	postgresDSN   string
	kafkaBrokers  string
	kafkaTopic    string
}

var serveFlagKeys = []string{
	config.FlagListen,
	config.FlagChatUpstream,
	config.FlagChatModel,
	config.FlagImageUpstream,
	config.FlagImageMaxCount,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

const serveLongDesc string = `Run the studio server.

The server relays streaming chat completions, generates image batches,
keeps the chat and image history and exposes the studio tools over MCP:

  GET    /ping                      Liveness check
  GET    /api/models                Chat model catalog
  POST   /api/chat                  Streaming chat relay (server-sent events)
  POST   /api/image?n=N             Image batch generation
  GET    /api/history/chat          Chat history (also POST, DELETE)
  GET    /api/history/images        Image history (also POST, DELETE)
  DELETE /api/history/images/:id    Delete one image
  POST   /mcp                       MCP streamable HTTP endpoint

The chat credential is read from ` + APIKeyEnv + `, either from the environment
or from the file named by --env-file, and otherwise from the key stored with
"studio auth groq".

History is kept in PostgreSQL when --postgres is set, in SQLite when --sqlite
is set, and in memory otherwise. Events are published to Kafka when
--kafka-brokers is set.`

const serveShortDesc string = "Run the studio server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")
			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.StudioFlags, serveFlagKeys)
			cmder.viper = v
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmder.debug, _ = cmd.Flags().GetBool("debug")
			return cmder.run()
		},
	}

	config.AddStringFlag(cmd, config.StudioFlags, config.FlagListen, &cmder.flags.listen)
	config.AddStringFlag(cmd, config.StudioFlags, config.FlagChatUpstream, &cmder.flags.chatUpstream)
	config.AddStringFlag(cmd, config.StudioFlags, config.FlagChatModel, &cmder.flags.chatModel)
	config.AddStringFlag(cmd, config.StudioFlags, config.FlagImageUpstream, &cmder.flags.imageUpstream)
	config.AddIntFlag(cmd, config.StudioFlags, config.FlagImageMaxCount, &cmder.flags.imageMaxCount)
	config.AddStringFlag(cmd, config.StudioFlags, config.FlagSQLite, &cmder.flags.sqlitePath)
	config.AddStringFlag(cmd, config.StudioFlags, config.FlagPostgres, &cmder.flags.postgresDSN)
	config.AddStringFlag(cmd, config.StudioFlags, config.FlagKafkaBrokers, &cmder.flags.kafkaBrokers)
	config.AddStringFlag(cmd, config.StudioFlags, config.FlagKafkaTopic, &cmder.flags.kafkaTopic)

	cmd.Flags().StringVar(&cmder.envFile, "env-file", ".env", "Dotenv file to load before reading "+APIKeyEnv)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file")
	cmd.Flags().BoolVar(&cmder.pretty, "pretty", false, "Colorized human readable logs")
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json", false, "JSON logs")
	cmd.Flags().BoolVar(&cmder.watchConfig, "watch-config", false, "Apply chat parameter edits to config.toml without a restart")
	cmd.Flags().BoolVar(&cmder.disableMCP, "disable-mcp", false, "Serve the MCP endpoint without tools")

	return cmd
}

func (c *ServeCommander) run() error {
	cfg, err := config.FromViper(c.viper)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	closeLog, err := c.setupLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	if err := loadEnvFile(c.envFile); err != nil {
		return err
	}

	ctx := context.Background()

	driver, err := openHistory(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := openPublisher(cfg, c.logger)
	if err != nil {
		return err
	}
	defer closePublisher(publisher, c.logger)

	apiKey, err := c.resolveAPIKey()
	if err != nil {
		return err
	}

	r := relay.New(relay.Config{
		UpstreamURL: cfg.Chat.Upstream,
		APIKey:      apiKey,
		Timeout:     time.Duration(cfg.Server.UpstreamTimeoutSeconds) * time.Second,
		Params:      relayParams(cfg),
		Logger:      c.logger,
	})

	images := image.New(image.Config{
		UpstreamURL:       cfg.Image.Upstream,
		Model:             cfg.Image.Model,
		Width:             cfg.Image.Width,
		Height:            cfg.Image.Height,
		MaxCount:          cfg.Image.MaxCount,
		RequestsPerSecond: cfg.Image.RequestsPerSecond,
		Logger:            c.logger,
	})

	srv, err := server.New(server.Config{
		ListenAddr: cfg.Server.Listen,
		Relay:      r,
		Images:     images,
		History:    history.NewCapped(driver, cfg.History.MaxMessages, cfg.History.MaxImages),
		Publisher:  publisher,
		DisableMCP: c.disableMCP,
		Logger:     c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer srv.Close()

	if c.watchConfig {
		c.watch(r)
	}

	c.logger.Info("starting studio server",
		"listen", cfg.Server.Listen,
		"chat_upstream", cfg.Chat.Upstream,
		"chat_model", cfg.Chat.Model,
		"image_upstream", cfg.Image.Upstream,
	)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
		return nil
	}
}

// setupLogger builds the console logger and, with --log-file, tees records
// into a JSON file. The returned func closes the file.
func (c *ServeCommander) setupLogger() (func(), error) {
	console := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(c.pretty),
		logger.WithJSON(c.jsonLogs),
	)

	if c.logFile == "" {
		c.logger = console
		return func() {}, nil
	}

	f, err := os.OpenFile(c.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	)
	c.logger = logger.Multi(console, file)
	return func() { _ = f.Close() }, nil
}

// watch re-applies the chat generation parameters whenever config.toml
// changes. Listener and storage settings still need a restart.
func (c *ServeCommander) watch(r *relay.Relay) {
	if c.viper.ConfigFileUsed() == "" {
		c.logger.Warn("no config file to watch")
		return
	}

	config.Watch(c.viper,
		func(cfg *config.Config, e fsnotify.Event) {
			p := relayParams(cfg)
			r.UpdateParams(p)
			c.logger.Info("config reloaded",
				"file", e.Name,
				"model", p.Model,
				"temperature", p.Temperature,
				"max_tokens", p.MaxTokens,
			)
		},
		func(err error) {
			c.logger.Warn("ignoring invalid config edit", "error", err)
		},
	)
	c.logger.Info("watching config", "file", c.viper.ConfigFileUsed())
}

// resolveAPIKey reads the chat credential from the environment (including the
// env file) or, failing that, from credentials.toml.
func (c *ServeCommander) resolveAPIKey() (string, error) {
	mgr, err := credentials.NewManager(c.configDir)
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}

	key, source, err := mgr.Resolve(credentials.Groq, os.Getenv)
	if err != nil {
		return "", fmt.Errorf("loading credentials: %w", err)
	}
	if key == "" {
		c.logger.Warn("chat credential missing, chat requests will fail",
			"env", APIKeyEnv,
			"credentials", mgr.GetTarget(),
		)
		return "", nil
	}

	c.logger.Info("chat credential loaded", "source", source)
	return key, nil
}

// loadEnvFile loads path into the process environment. A missing file is not
// an error; variables already set win over the file.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func relayParams(cfg *config.Config) relay.Params {
	return relay.Params{
		Model:       cfg.Chat.Model,
		Temperature: float32(cfg.Chat.Temperature),
		MaxTokens:   cfg.Chat.MaxTokens,
		TopP:        float32(cfg.Chat.TopP),
	}
}

// openHistory picks the history backend: PostgreSQL, then SQLite, then
// memory.
func openHistory(ctx context.Context, cfg *config.Config, log *slog.Logger) (history.Driver, error) {
	switch {
	case cfg.Storage.PostgresDSN != "":
		d, err := postgres.NewDriver(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL history: %w", err)
		}
		log.Info("using PostgreSQL history")
		return d, nil
	case cfg.Storage.SQLitePath != "":
		d, err := sqlite.NewDriver(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite history: %w", err)
		}
		log.Info("using SQLite history", "path", cfg.Storage.SQLitePath)
		return d, nil
	}

	log.Info("using in-memory history")
	return inmemory.NewDriver(), nil
}

func closePublisher(p eventstream.Publisher, log *slog.Logger) {
	if np, ok := p.(*nop.Publisher); ok && np.Discarded() > 0 {
		log.Debug("events discarded, no kafka brokers configured", "count", np.Discarded())
	}
	if err := p.Close(); err != nil {
		log.Warn("closing event publisher", "error", err)
	}
}

func openPublisher(cfg *config.Config, log *slog.Logger) (eventstream.Publisher, error) {
	brokers := kafka.ParseBrokers(cfg.Events.KafkaBrokers)
	if len(brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	p, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   cfg.Events.KafkaTopic,
		Logger:  log,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka publisher: %w", err)
	}
	log.Info("publishing events to Kafka", "brokers", brokers, "topic", cfg.Events.KafkaTopic)
	return p, nil
}
