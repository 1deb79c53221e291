package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"

	"github.com/AnyoneClown/ds-translator/dstranslator"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg        = dstranslator.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use: "ds-translator [flags]",
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		if err := loadConfig(); err != nil {
			log.Fatalln(err)
		}
	},
}

func loadConfig() error {
	return viper.Unmarshal(
		cfg,
		viper.DecodeHook(
			mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				LevelToStringHookFunc(),
			),
		),
	)
}

func getLogLevel(level string) (slog.Level, error) {
	switch level {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}

		// Config fields are *slog.LevelVar, but mapstructure dereferences
		// non-nil pointers before decoding, so the hook sees the element
		// type when decoding over DefaultConfig()
		typ := t
		if typ.Kind() == reflect.Ptr {
			typ = typ.Elem()
		}
		if typ != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}

		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, fmt.Errorf("invalid log level: %s", data)
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		if t.Kind() == reflect.Ptr {
			return lvlVar, nil
		}
		return reflect.ValueOf(lvlVar).Elem().Interface(), nil
	}
}

func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			//
		}
	}()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else {
		if err := godotenv.Load(configFile); err != nil {
			log.Printf("could not load env from %s", configFile)
		}
	}

	viper.SetDefault("database", dstranslator.DefaultDatabase)
	viper.SetDefault("database_type", dstranslator.DefaultDatabaseType)
	viper.SetDefault(
		"database_slow_threshold",
		dstranslator.DefaultDatabaseSlowThreshold,
	)
	viper.SetDefault(
		"database_log_level",
		dstranslator.DefaultDatabaseLogLevel.String(),
	)

	viper.SetDefault("command_prefix", dstranslator.DefaultCommandPrefix)
	viper.SetDefault("translator_role", dstranslator.DefaultTranslatorRoleName)

	viper.SetDefault("log_level", dstranslator.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", dstranslator.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", dstranslator.DefaultShutdownTimeout)

	// keys with no meaningful default still need to be registered for
	// AutomaticEnv to surface them to Unmarshal
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault(
		"discord.log_level",
		dstranslator.DefaultDiscordLogLevel.String(),
	)
	viper.SetDefault(
		"discord.discordgo_log_level",
		dstranslator.DefaultDiscordgoLogLevel.String(),
	)
	viper.SetDefault(
		"discord.gateway_intents",
		int(dstranslator.DefaultDiscordGatewayIntent),
	)

	viper.SetDefault("translator.token", "")
	viper.SetDefault("translator.base_url", "")
	viper.SetDefault("translator.model", dstranslator.DefaultTranslatorModel)
	viper.SetDefault(
		"translator.request_timeout",
		dstranslator.DefaultTranslatorRequestTimeout,
	)
	viper.SetDefault(
		"translator.max_requests_per_second",
		dstranslator.DefaultTranslatorMaxRequestsPerSecond,
	)
	viper.SetDefault(
		"translator.log_level",
		dstranslator.DefaultTranslatorLogLevel.String(),
	)

	viper.SetDefault(
		"scheduler.check_interval",
		dstranslator.DefaultSchedulerCheckInterval,
	)
	viper.SetDefault(
		"scheduler.log_level",
		dstranslator.DefaultSchedulerLogLevel.String(),
	)

	viper.SetEnvPrefix(dstranslator.DefaultEnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

//nolint:gochecknoinits
func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"env-file",
		"",
		"path to a .env file to load",
	)
}
