package dstranslator

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

// guildRoleCacheTTL bounds how stale the per-guild role name cache can
// get before the next lookup refreshes it from the API.
const guildRoleCacheTTL = time.Minute

// Discord handles the Discord integration: the gateway session, role
// lookups, and outbound channel/reply messages.
type Discord struct {
	session DiscordSessionHandler
	config  *DiscordConfig
	logger  *slog.Logger

	metricConnects         atomic.Int64
	metricDisconnects      atomic.Int64
	metricMessagesHandled  atomic.Int64
	connected              atomic.Bool
	discordgoRemoveHandler []func()

	roleCache   map[string]guildRoleEntry
	roleCacheMu sync.Mutex

	dst *DSTranslator
}

type guildRoleEntry struct {
	// role ID -> role name
	names     map[string]string
	refreshed time.Time
}

// newDiscord initializes a new Discord instance with the provided configuration
func newDiscord(config *DiscordConfig) (*Discord, error) {
	if config.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	return &Discord{
		config:                 config,
		discordgoRemoveHandler: []func(){},
		roleCache:              map[string]guildRoleEntry{},
	}, nil
}

// newSession initializes a new Discord session for the Discord struct.
func (d *Discord) newSession() (DiscordSessionHandler, error) {
	session := DiscordSession{
		logger: d.logger.With(loggerNameKey, "discord_session_handler"),
	}
	disc, err := discordgo.New("Bot " + d.config.Token)
	if err != nil {
		return session, fmt.Errorf("error creating discord session: %w", err)
	}
	disc.SyncEvents = false
	disc.StateEnabled = true
	disc.Identify.Intents = d.config.GatewayIntents
	session.session = disc
	if d.config.httpClient != nil {
		disc.Client = d.config.httpClient
	}

	if err = session.SetLogLevel(d.config.DiscordGoLogLevel.Level()); err != nil {
		return session, err
	}

	return session, nil
}

// channelMessageSend sends the given message to the given discord channel ID
func (d *Discord) channelMessageSend(
	channelID string,
	message string,
	opts ...discordgo.RequestOption,
) error {
	_, err := d.session.ChannelMessageSend(channelID, message, opts...)
	return err
}

// channelMessageReply sends a message as a reply to the referenced
// message, preserving the reply chain.
func (d *Discord) channelMessageReply(
	channelID string,
	message string,
	reference *discordgo.MessageReference,
	opts ...discordgo.RequestOption,
) error {
	_, err := d.session.ChannelMessageSendReply(
		channelID,
		truncate(message, discordMaxMessageLength),
		reference,
		opts...,
	)
	return err
}

// referencedMessage resolves the message a command replies to. The
// gateway usually inlines it; fall back to a channel fetch when not.
func (d *Discord) referencedMessage(
	m *discordgo.MessageCreate,
) (*discordgo.Message, error) {
	if m.MessageReference == nil {
		return nil, nil
	}
	if m.ReferencedMessage != nil {
		return m.ReferencedMessage, nil
	}
	return d.session.ChannelMessage(
		m.MessageReference.ChannelID,
		m.MessageReference.MessageID,
	)
}

// memberHasRole reports whether the message author holds the named
// role in the message's guild. This is the capability query behind
// auto-translation - it never touches handler logic directly, so tests
// can drive it through a mock session.
func (d *Discord) memberHasRole(
	m *discordgo.MessageCreate,
	roleName string,
) bool {
	if m.Member == nil || len(m.Member.Roles) == 0 {
		return false
	}
	// when a guild is configured, role lookups are scoped to it
	if d.config.GuildID != "" && m.GuildID != d.config.GuildID {
		return false
	}
	names, err := d.guildRoleNames(m.GuildID)
	if err != nil {
		d.logger.Error(
			"error fetching guild roles",
			tint.Err(err),
			"guild_id", m.GuildID,
		)
		return false
	}
	for _, roleID := range m.Member.Roles {
		if names[roleID] == roleName {
			return true
		}
	}
	return false
}

// guildRoleNames returns a role ID -> name mapping for the guild,
// cached for guildRoleCacheTTL.
func (d *Discord) guildRoleNames(guildID string) (map[string]string, error) {
	d.roleCacheMu.Lock()
	defer d.roleCacheMu.Unlock()

	if entry, ok := d.roleCache[guildID]; ok {
		if time.Since(entry.refreshed) < guildRoleCacheTTL {
			return entry.names, nil
		}
	}

	roles, err := d.session.GuildRoles(guildID)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(roles))
	for _, role := range roles {
		names[role.ID] = role.Name
	}
	d.roleCache[guildID] = guildRoleEntry{
		names:     names,
		refreshed: time.Now(),
	}
	return names, nil
}

func (d *Discord) handlerReady() func(
	s *discordgo.Session,
	r *discordgo.Ready,
) {
	return func(s *discordgo.Session, _ *discordgo.Ready) {
		d.logger.Info(
			"ready",
			"session_id", s.State.SessionID,
			"user_id", s.State.User.ID,
			"username", s.State.User.Username,
		)
	}
}

func (d *Discord) handlerConnect() func(
	s *discordgo.Session,
	r *discordgo.Connect,
) {
	return func(s *discordgo.Session, _ *discordgo.Connect) {
		d.metricConnects.Add(1)
		d.connected.Store(true)

		var sessionID string
		if s != nil && s.State != nil {
			sessionID = s.State.SessionID
		}
		d.logger.Info("connected", "session_id", sessionID)
	}
}

func (d *Discord) handlerDisconnect() func(
	s *discordgo.Session,
	r *discordgo.Disconnect,
) {
	return func(s *discordgo.Session, _ *discordgo.Disconnect) {
		d.connected.Store(false)
		d.metricDisconnects.Add(1)

		var sessionID string
		if s != nil && s.State != nil {
			sessionID = s.State.SessionID
		}
		d.logger.Info("disconnected", "session_id", sessionID)
	}
}

// DiscordSessionHandler defines the slice of a discordgo session the
// bot uses, so tests can substitute a mock session.
type DiscordSessionHandler interface {
	// Open opens the gateway websocket connection
	Open() error

	// Close closes the gateway websocket connection
	Close() error

	// AddHandler adds a discord gateway event handler
	AddHandler(handler any) func()

	// ChannelMessageSend sends a message to the given channel
	ChannelMessageSend(
		channelID string,
		content string,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// ChannelMessageSendReply sends a message to the given channel, as a
	// reply to the referenced message
	ChannelMessageSendReply(
		channelID string,
		content string,
		reference *discordgo.MessageReference,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// ChannelMessage fetches a single message by channel and message ID
	ChannelMessage(
		channelID string,
		messageID string,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)

	// GuildRoles lists the roles of the given guild
	GuildRoles(
		guildID string,
		options ...discordgo.RequestOption,
	) ([]*discordgo.Role, error)

	// SetHTTPClient sets the HTTP client for the session
	SetHTTPClient(client *http.Client)

	// SetLogLevel modifies the session's log level
	SetLogLevel(lvl slog.Level) error

	// BotUserID returns the bot's own user ID, when known
	BotUserID() string
}

// DiscordSession implements DiscordSessionHandler, wrapping a
// [discordgo.Session](https://pkg.go.dev/github.com/bwmarrin/discordgo#Session)
type DiscordSession struct {
	session *discordgo.Session
	logger  *slog.Logger
}

func (d DiscordSession) Open() error {
	return d.session.Open()
}

func (d DiscordSession) Close() error {
	return d.session.Close()
}

func (d DiscordSession) AddHandler(handler any) func() {
	return d.session.AddHandler(handler)
}

func (d DiscordSession) ChannelMessageSend(
	channelID string,
	content string,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := d.session.ChannelMessageSend(channelID, content, options...)
	if err != nil {
		d.logger.Error(
			"error sending message",
			tint.Err(err),
			"channel_id", channelID,
			"content", content,
		)
	} else {
		d.logger.Info(
			"sent message",
			"channel_id", channelID,
			"content", content,
		)
	}
	return msg, err
}

func (d DiscordSession) ChannelMessageSendReply(
	channelID string,
	content string,
	reference *discordgo.MessageReference,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	msg, err := d.session.ChannelMessageSendReply(
		channelID, content, reference, options...,
	)
	if err != nil {
		d.logger.Error(
			"error sending message reply",
			tint.Err(err),
			"channel_id", channelID,
			"content", content,
			"reference", reference,
		)
	} else {
		d.logger.Info(
			"sent message reply",
			"channel_id", channelID,
			"content", content,
			"reference", reference,
		)
	}
	return msg, err
}

func (d DiscordSession) ChannelMessage(
	channelID string,
	messageID string,
	options ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	return d.session.ChannelMessage(channelID, messageID, options...)
}

func (d DiscordSession) GuildRoles(
	guildID string,
	options ...discordgo.RequestOption,
) ([]*discordgo.Role, error) {
	return d.session.GuildRoles(guildID, options...)
}

func (d DiscordSession) SetHTTPClient(client *http.Client) {
	d.session.Client = client
}

func (d DiscordSession) SetLogLevel(lvl slog.Level) error {
	switch lvl.Level() {
	case slog.LevelInfo:
		d.session.LogLevel = discordgo.LogInformational
	case slog.LevelWarn:
		d.session.LogLevel = discordgo.LogWarning
	case slog.LevelDebug:
		d.session.LogLevel = discordgo.LogDebug
	case slog.LevelError:
		d.session.LogLevel = discordgo.LogError
	default:
		return fmt.Errorf("invalid log level: %s", lvl)
	}
	return nil
}

func (d DiscordSession) BotUserID() string {
	if d.session.State != nil && d.session.State.User != nil {
		return d.session.State.User.ID
	}
	return ""
}
