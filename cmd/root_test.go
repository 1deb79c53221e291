package cmd

import (
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/AnyoneClown/ds-translator/dstranslator"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetLogLevel(t *testing.T) {
	for _, tc := range []struct {
		input    string
		expected slog.Level
	}{
		{"DEBUG", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"ERROR", slog.LevelError},
	} {
		lvl, err := getLogLevel(tc.input)
		require.NoError(t, err)
		assert.Equal(t, tc.expected, lvl)
	}

	_, err := getLogLevel("LOUD")
	assert.Error(t, err)
}

func TestLevelToStringHookFunc(t *testing.T) {
	hook := LevelToStringHookFunc()

	lvlVarPtrType := reflect.TypeOf(&slog.LevelVar{})
	lvlVarType := lvlVarPtrType.Elem()
	stringType := reflect.TypeOf("")

	out, err := hook(stringType, lvlVarPtrType, "WARN")
	require.NoError(t, err)
	lvlVar, ok := out.(*slog.LevelVar)
	require.True(t, ok)
	assert.Equal(t, slog.LevelWarn, lvlVar.Level())

	// decoding over a populated config dereferences the pointer fields,
	// so the hook must also handle the bare element type
	out, err = hook(stringType, lvlVarType, "DEBUG")
	require.NoError(t, err)
	require.Equal(t, lvlVarType, reflect.TypeOf(out))
	elem := &slog.LevelVar{}
	reflect.ValueOf(elem).Elem().Set(reflect.ValueOf(out))
	assert.Equal(t, slog.LevelDebug, elem.Level())

	// non-LevelVar targets pass through untouched
	out, err = hook(stringType, stringType, "WARN")
	require.NoError(t, err)
	assert.Equal(t, "WARN", out)

	_, err = hook(stringType, lvlVarPtrType, "LOUD")
	assert.Error(t, err)
}

func TestConfigFromEnvironment(t *testing.T) {
	t.Setenv("DST_DISCORD_TOKEN", "discord-secret")
	t.Setenv("DST_TRANSLATOR_TOKEN", "provider-secret")
	t.Setenv("DST_TRANSLATOR_BASE_URL", "https://llm.example.com/v1")
	t.Setenv("DST_TRANSLATOR_MODEL", "gpt-4o")
	t.Setenv("DST_DISCORD_GUILD_ID", "guild-123")
	t.Setenv("DST_DATABASE_TYPE", "postgres")
	t.Setenv("DST_LOG_LEVEL", "DEBUG")
	t.Setenv("DST_DISCORD_LOG_LEVEL", "ERROR")
	t.Setenv("DST_SCHEDULER_CHECK_INTERVAL", "45s")
	t.Setenv("DST_COMMAND_PREFIX", "?")

	t.Cleanup(viper.Reset)
	initConfig()

	cfg = dstranslator.DefaultConfig()
	require.NoError(t, loadConfig())

	assert.Equal(t, "discord-secret", cfg.Discord.Token)
	assert.Equal(t, "guild-123", cfg.Discord.GuildID)
	assert.Equal(t, "provider-secret", cfg.Translator.Token)
	assert.Equal(t, "https://llm.example.com/v1", cfg.Translator.BaseURL)
	assert.Equal(t, "gpt-4o", cfg.Translator.Model)
	assert.Equal(t, "postgres", cfg.DatabaseType)
	assert.Equal(t, "?", cfg.CommandPrefix)
	assert.Equal(t, 45*time.Second, cfg.Scheduler.CheckInterval)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel.Level())
	assert.Equal(t, slog.LevelError, cfg.Discord.LogLevel.Level())
}

func TestConfigDefaultsUnmarshal(t *testing.T) {
	// decoding the untouched defaults must succeed; every LevelVar field
	// is pre-populated, which exercises the hook's element-type path
	t.Cleanup(viper.Reset)
	initConfig()

	cfg = dstranslator.DefaultConfig()
	require.NoError(t, loadConfig())

	assert.Equal(t, dstranslator.DefaultDatabase, cfg.Database)
	assert.Equal(t, dstranslator.DefaultCommandPrefix, cfg.CommandPrefix)
	assert.Equal(t, dstranslator.DefaultLogLevel, cfg.LogLevel.Level())
	assert.Equal(
		t,
		dstranslator.DefaultSchedulerCheckInterval,
		cfg.Scheduler.CheckInterval,
	)
	assert.Empty(t, cfg.Discord.Token)
	assert.Empty(t, cfg.Translator.Token)
}
