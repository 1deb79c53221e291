package dstranslator

import (
	"context"
	"fmt"
	"regexp"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

// autoTranslateSigils are prefixes that mark a message as command-like
// rather than prose, regardless of the configured command prefix.
// Messages starting with any of these are never auto-translated, so the
// bot stays out of the way of other bots sharing the channel.
var autoTranslateSigils = []string{"!", "$", "/", "?"}

// roleMentionPattern matches a single Discord role mention token.
var roleMentionPattern = regexp.MustCompile(`^<@&(\d+)>$`)

// botCommand is one entry in the dispatcher's command table: a name, a
// usage string for error notices, and the handler the dispatcher routes
// matching messages to.
type botCommand struct {
	name    string
	usage   string
	handler func(ctx context.Context, m *discordgo.MessageCreate, args []string)
}

// commandTable builds the explicit command-name -> handler mapping the
// dispatcher consults. Aliases ("t"/"translate") share a handler.
func (d *DSTranslator) commandTable() map[string]botCommand {
	prefix := d.config.CommandPrefix
	translateCmd := botCommand{
		name:    "translate",
		usage:   fmt.Sprintf("Usage: reply to a message with `%st <language>`", prefix),
		handler: d.handleTranslateToLanguage,
	}
	commands := map[string]botCommand{
		"en": {
			name:    "en",
			usage:   fmt.Sprintf("Usage: reply to a message with `%sen`", prefix),
			handler: d.handleTranslateToEnglish,
		},
		"t":         translateCmd,
		"translate": translateCmd,
		"schedule": {
			name: "schedule",
			usage: fmt.Sprintf(
				"Usage: `%sschedule YYYY-MM-DD HH:MM @role Your message` (UTC)",
				prefix,
			),
			handler: d.handleScheduleEvent,
		},
		"events": {
			name:    "events",
			usage:   fmt.Sprintf("Usage: `%sevents`", prefix),
			handler: d.handleListEvents,
		},
		"cancel": {
			name: "cancel",
			usage: fmt.Sprintf(
				"Usage: `%scancel <event number>` (see `%sevents`)",
				prefix,
				prefix,
			),
			handler: d.handleCancelEvent,
		},
	}
	return commands
}

// handleDiscordMessage is the single entry point for every inbound
// MessageCreate gateway event. It classifies the message and routes it
// to at most one handler:
//
//   - messages from bots, from the application itself, or outside a
//     guild (DMs) are dropped with no side effect
//   - messages starting with the command prefix are matched against the
//     command table; a match runs that handler, a non-match is silently
//     ignored, and either way auto-translation is skipped
//   - remaining prose from authors holding the Translator role is
//     auto-translated to English
//
// This method is run as a goroutine per message. A panic in a handler
// is recovered and logged; it never stops the gateway handler.
func (d *DSTranslator) handleDiscordMessage(
	ctx context.Context,
	m *discordgo.MessageCreate,
) {
	ctx, logger := d.getLogger(ctx)

	defer func() {
		if rc := recover(); rc != nil {
			logger.ErrorContext(
				ctx,
				fmt.Sprintf("recovered from panic handling message: %v", rc),
				"stack", string(debug.Stack()),
			)
		}
	}()

	author := m.Author
	if author == nil && m.Member != nil {
		author = m.Member.User
	}
	if author == nil {
		logger.WarnContext(ctx, "couldn't find author in discord message")
		return
	}
	if author.Bot || author.ID == d.discord.session.BotUserID() {
		logger.DebugContext(ctx, "ignoring message from bot", "user_id", author.ID)
		return
	}
	if m.GuildID == "" {
		logger.DebugContext(ctx, "ignoring direct message", "user_id", author.ID)
		return
	}

	d.discord.metricMessagesHandled.Add(1)

	content := strings.TrimSpace(m.Content)

	if strings.HasPrefix(content, d.config.CommandPrefix) {
		rest := strings.TrimPrefix(content, d.config.CommandPrefix)
		fields := strings.Fields(rest)
		if len(fields) == 0 {
			return
		}
		name := strings.ToLower(fields[0])
		cmd, ok := d.commands[name]
		if !ok {
			// unknown commands are silently ignored - another bot
			// sharing the prefix may own them
			logger.DebugContext(ctx, "unrecognized command", "command", name)
			return
		}
		logger.InfoContext(
			ctx,
			"dispatching command",
			"command", cmd.name,
			"user_id", author.ID,
			"channel_id", m.ChannelID,
		)
		cmd.handler(ctx, m, fields[1:])
		return
	}

	if content == "" || startsWithSigil(content) {
		return
	}
	if !d.discord.memberHasRole(m, d.config.TranslatorRole) {
		return
	}
	d.handleAutoTranslation(ctx, m)
}

func startsWithSigil(content string) bool {
	for _, sigil := range autoTranslateSigils {
		if strings.HasPrefix(content, sigil) {
			return true
		}
	}
	return false
}

// parseScheduleArgs parses `<YYYY-MM-DD> <HH:MM> <@role>... <message>`
// into its parts. The timestamp is UTC with minute resolution. At least
// one role mention and a non-empty message are required.
func parseScheduleArgs(args []string) (
	fireAt time.Time,
	roleTargets RoleMentions,
	message string,
	err error,
) {
	if len(args) < 4 {
		err = usageError("schedule requires a date, a time, at least one role mention, and a message")
		return
	}

	fireAt, parseErr := time.ParseInLocation(
		scheduleTimeLayout,
		args[0]+" "+args[1],
		time.UTC,
	)
	if parseErr != nil {
		err = usageError("invalid date/time (expected `YYYY-MM-DD HH:MM`, UTC)")
		return
	}

	rest := args[2:]
	for len(rest) > 0 {
		token := rest[0]
		if match := roleMentionPattern.FindStringSubmatch(token); match != nil {
			roleTargets = append(roleTargets, match[1])
			rest = rest[1:]
			continue
		}
		if token == "@everyone" {
			roleTargets = append(roleTargets, "everyone")
			rest = rest[1:]
			continue
		}
		break
	}
	if len(roleTargets) == 0 {
		err = usageError("schedule requires at least one role mention after the time")
		return
	}

	message = strings.TrimSpace(strings.Join(rest, " "))
	if message == "" {
		err = usageError("schedule requires a message after the role mentions")
		return
	}
	return
}

// parseCancelArgs parses the sequence number argument of `cancel`.
func parseCancelArgs(args []string) (int64, error) {
	if len(args) != 1 {
		return 0, usageError("cancel requires a single event number")
	}
	seq, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || seq < 1 {
		return 0, usageError("`%s` is not a valid event number", args[0])
	}
	return seq, nil
}
