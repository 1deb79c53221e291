package dstranslator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

var (
	// When building, set these like:
	// -ldflags "-X github.com/AnyoneClown/ds-translator/dstranslator.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

var defaultLogWriter io.Writer = os.Stdout

// DSTranslator is the main application struct. It wires together the
// Discord integration, the translation provider, the event scheduler
// and the database, and owns the run/shutdown lifecycle.
//
// Inbound gateway messages flow through handleDiscordMessage, which
// classifies each one and routes it to at most one handler. The
// scheduler's due-check loop runs alongside as a periodic goroutine
// sharing the same event store.
type DSTranslator struct {
	config *Config

	// Read-side GORM connection
	db *gorm.DB

	// Write-side wrapper. When using SQLite, writes are serialized
	// behind a mutex.
	writeDB DBI

	// Standard logger. Missing loggers fall back to slog.Default()
	logger *slog.Logger

	// Handler for the above
	logHandler slog.Handler

	// Handles discord integration and the gateway session
	discord *Discord

	// Wraps the external translation provider
	translator *Translator

	// Owns ScheduledEvent records and the due-check loop
	scheduler *EventScheduler

	// The dispatcher's command table, built once at startup
	commands map[string]botCommand

	// signalStop enables an explicit stop signal to be sent to the bot
	signalStop chan struct{}

	// signalReady has a value sent on it once the gateway session is
	// open and the due-check loop is running
	signalReady chan struct{}

	// A signal is sent on this channel when shutdown finishes
	eventShutdown chan struct{}

	// prevents Run from executing concurrently
	runMu sync.Mutex

	// The time Run was called
	startedAt time.Time
}

// New creates a DSTranslator from the given config, wiring loggers and
// the provider client. The database and gateway session are created
// in Run.
func New(config *Config) (*DSTranslator, error) {
	var errs []error

	switch config.DatabaseType {
	case dbTypeSQLite, dbTypePostgres:
		//
	default:
		errs = append(
			errs,
			errors.New("invalid database type (must be 'sqlite' or 'postgres')"),
		)
	}
	if config.Translator == nil || config.Translator.Token == "" {
		errs = append(errs, errors.New("translator token is required"))
	}
	if config.CommandPrefix == "" {
		config.CommandPrefix = DefaultCommandPrefix
	}
	if config.TranslatorRole == "" {
		config.TranslatorRole = DefaultTranslatorRoleName
	}
	if config.HTTPClient == nil {
		config.HTTPClient = http.DefaultClient
	}

	d := &DSTranslator{
		config:        config,
		signalReady:   make(chan struct{}, 1),
		eventShutdown: make(chan struct{}, 1),
	}

	d.logHandler = tint.NewHandler(
		defaultLogWriter, &tint.Options{
			Level:     d.config.LogLevel,
			AddSource: true,
		},
	)
	d.logger = slog.New(d.logHandler)
	slog.SetDefault(d.logger)

	d.translator = newTranslator(
		config.Translator,
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Translator.LogLevel,
				AddSource: true,
			},
		),
		config.HTTPClient,
	)

	d.config.Discord.httpClient = config.HTTPClient
	disc, err := newDiscord(d.config.Discord)
	if err != nil {
		errs = append(errs, err)
	}

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     d.config.Discord.DiscordGoLogLevel,
				AddSource: true,
			},
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)

	if disc != nil {
		disc.logger = slog.New(
			tint.NewHandler(
				defaultLogWriter, &tint.Options{
					Level:     d.config.Discord.LogLevel,
					AddSource: true,
				},
			),
		).With(loggerNameKey, "discord")
		disc.dst = d
		d.discord = disc
	}

	d.scheduler = newEventScheduler(
		d,
		config.Scheduler,
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     config.Scheduler.LogLevel,
				AddSource: true,
			},
		),
	)

	d.commands = d.commandTable()

	return d, errors.Join(errs...)
}

func (d *DSTranslator) getLogger(ctx context.Context) (
	context.Context,
	*slog.Logger,
) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = d.logger
		if logger == nil {
			logger = slog.Default()
		}
		ctx = WithLogger(ctx, logger)
	}
	return ctx, logger
}

// Run starts the bot: it initializes the database, opens the gateway
// session, registers the message handler and starts the due-check
// loop, then blocks until the context is cancelled or Stop is called.
func (d *DSTranslator) Run(ctx context.Context) error {
	// prevents concurrent runs
	d.runMu.Lock()
	defer d.runMu.Unlock()

	d.signalStop = make(chan struct{}, 1)
	d.startedAt = time.Now()
	logger := d.logger
	ctx = WithLogger(ctx, logger)

	logger.LogAttrs(ctx, slog.LevelInfo, "starting", slog.Any("config", d.config))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-d.signalStop:
			logger.Warn("got stop signal, canceling")
			cancel()
		case <-ctx.Done():
			//
		}
	}()

	startCtx, startCancel := context.WithTimeout(ctx, d.config.StartupTimeout)
	defer startCancel()

	initErr := make(chan error, 1)
	go func() {
		initErr <- d.initRun(startCtx)
	}()

	select {
	case <-startCtx.Done():
		return fmt.Errorf("startup cancelled or timed out")
	case err := <-initErr:
		if err != nil {
			logger.ErrorContext(ctx, "init error", tint.Err(err))
			return err
		}
	}

	runtimeWG := &sync.WaitGroup{}
	runtimeWG.Add(1)
	go func() {
		defer runtimeWG.Done()
		d.scheduler.watchDueEvents(ctx)
	}()

	d.signalReady <- struct{}{}
	logger.InfoContext(ctx, "ready")

	<-ctx.Done()
	logger.WarnContext(ctx, "shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		d.config.ShutdownTimeout,
	)
	defer shutdownCancel()
	d.shutdown(shutdownCtx, runtimeWG)

	return nil
}

// initRun creates the database and opens the gateway session. Bounded
// by the startup timeout in Run.
func (d *DSTranslator) initRun(ctx context.Context) error {
	db, err := CreateDB(
		ctx,
		d.config.DatabaseType,
		d.config.Database,
		tint.NewHandler(
			defaultLogWriter, &tint.Options{
				Level:     d.config.DatabaseLogLevel,
				AddSource: true,
			},
		),
		d.config.DatabaseSlowThreshold,
	)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	d.db = db
	d.writeDB = NewDatabase(
		db,
		d.logger,
		d.config.DatabaseType != dbTypeSQLite,
	)

	session, err := d.discord.newSession()
	if err != nil {
		return err
	}
	d.discord.session = session

	d.discord.discordgoRemoveHandler = []func(){
		d.discord.session.AddHandler(d.discord.handlerConnect()),
		d.discord.session.AddHandler(d.discord.handlerDisconnect()),
		d.discord.session.AddHandler(d.discord.handlerReady()),
		d.discord.session.AddHandler(
			func(_ *discordgo.Session, m *discordgo.MessageCreate) {
				go d.handleDiscordMessage(WithLogger(context.Background(), d.logger), m)
			},
		),
	}

	if err = d.discord.session.Open(); err != nil {
		return fmt.Errorf("error opening discord session: %w", err)
	}
	return nil
}

// Stop signals the bot to begin a graceful shutdown.
func (d *DSTranslator) Stop() {
	if d.signalStop != nil {
		d.signalStop <- struct{}{}
	}
}

func (d *DSTranslator) shutdown(ctx context.Context, runtimeWG *sync.WaitGroup) {
	defer func() {
		d.eventShutdown <- struct{}{}
	}()

	for _, removeHandler := range d.discord.discordgoRemoveHandler {
		removeHandler()
	}
	if d.discord.session != nil {
		if err := d.discord.session.Close(); err != nil {
			d.logger.Error("error closing discord session", tint.Err(err))
		}
	}

	done := make(chan struct{}, 1)
	go func() {
		runtimeWG.Wait()
		done <- struct{}{}
	}()
	select {
	case <-done:
		d.logger.Info("shutdown complete")
	case <-ctx.Done():
		d.logger.Warn("shutdown timed out")
	}
}
