package dstranslator

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/require"
)

const (
	testBotUserID        = "bot-user-id"
	testGuildID          = "guild-1"
	testChannelID        = "channel-1"
	testUserID           = "user-1"
	testTranslatorRoleID = "role-translator"
)

// newTestBot creates a DSTranslator backed by a temp-dir SQLite
// database, a mock gateway session and a mock provider client.
func newTestBot(t testing.TB) (
	*DSTranslator,
	*mockDiscordSession,
	*mockTranslationClient,
) {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Database = filepath.Join(t.TempDir(), "test.sqlite3")
	cfg.Discord.Token = "test-token"
	cfg.Translator.Token = "test-token"
	// don't slow the suite down on the limiter
	cfg.Translator.MaxRequestsPerSecond = 1000

	bot, err := New(cfg)
	require.NoError(t, err)

	db, err := CreateDB(
		context.Background(),
		cfg.DatabaseType,
		cfg.Database,
		bot.logHandler,
		cfg.DatabaseSlowThreshold,
	)
	require.NoError(t, err)
	bot.db = db
	bot.writeDB = NewDatabase(db, bot.logger, false)

	session := newMockDiscordSession()
	bot.discord.session = session

	client := newMockTranslationClient()
	bot.translator.client = client

	return bot, session, client
}

// newTestMessage builds a guild message from a regular (non-bot,
// non-Translator) user.
func newTestMessage(content string) *discordgo.MessageCreate {
	user := &discordgo.User{ID: testUserID, Username: "someone"}
	return &discordgo.MessageCreate{
		Message: &discordgo.Message{
			ID:        "msg-1",
			ChannelID: testChannelID,
			GuildID:   testGuildID,
			Content:   content,
			Author:    user,
			Member:    &discordgo.Member{User: user},
		},
	}
}

// asTranslator gives the message author the Translator role.
func asTranslator(m *discordgo.MessageCreate) *discordgo.MessageCreate {
	m.Member.Roles = append(m.Member.Roles, testTranslatorRoleID)
	return m
}

// asReplyTo attaches a referenced message, as the gateway inlines it
// for replies.
func asReplyTo(
	m *discordgo.MessageCreate,
	referenced *discordgo.Message,
) *discordgo.MessageCreate {
	m.MessageReference = &discordgo.MessageReference{
		MessageID: referenced.ID,
		ChannelID: referenced.ChannelID,
		GuildID:   referenced.GuildID,
	}
	m.ReferencedMessage = referenced
	return m
}

type sentMessage struct {
	ChannelID string
	Content   string
	Reference *discordgo.MessageReference
}

// mockDiscordSession implements DiscordSessionHandler, recording every
// outbound message instead of hitting the Discord API.
type mockDiscordSession struct {
	mu      sync.Mutex
	sent    []sentMessage
	replies []sentMessage

	// messages resolvable via ChannelMessage, keyed channelID:messageID
	messages map[string]*discordgo.Message

	guildRoles map[string][]*discordgo.Role

	// sendErr, when set, fails every outbound send
	sendErr error

	logger *slog.Logger
}

func newMockDiscordSession() *mockDiscordSession {
	return &mockDiscordSession{
		messages: map[string]*discordgo.Message{},
		guildRoles: map[string][]*discordgo.Role{
			testGuildID: {
				{ID: testTranslatorRoleID, Name: DefaultTranslatorRoleName},
				{ID: "role-other", Name: "Member"},
			},
		},
		logger: slog.New(
			tint.NewHandler(
				os.Stdout, &tint.Options{Level: slog.LevelWarn},
			),
		).With(loggerNameKey, "mock_session"),
	}
}

func (d *mockDiscordSession) allSent() []sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	all := make([]sentMessage, 0, len(d.sent)+len(d.replies))
	all = append(all, d.sent...)
	all = append(all, d.replies...)
	return all
}

func (d *mockDiscordSession) sentMessages() []sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sentMessage{}, d.sent...)
}

func (d *mockDiscordSession) sentReplies() []sentMessage {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]sentMessage{}, d.replies...)
}

func (d *mockDiscordSession) Open() error {
	return nil
}

func (d *mockDiscordSession) Close() error {
	return nil
}

func (d *mockDiscordSession) AddHandler(_ any) func() {
	return func() {}
}

func (d *mockDiscordSession) ChannelMessageSend(
	channelID string,
	content string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sendErr != nil {
		return nil, d.sendErr
	}
	d.sent = append(d.sent, sentMessage{ChannelID: channelID, Content: content})
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (d *mockDiscordSession) ChannelMessageSendReply(
	channelID string,
	content string,
	reference *discordgo.MessageReference,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sendErr != nil {
		return nil, d.sendErr
	}
	d.replies = append(
		d.replies,
		sentMessage{ChannelID: channelID, Content: content, Reference: reference},
	)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (d *mockDiscordSession) ChannelMessage(
	channelID string,
	messageID string,
	_ ...discordgo.RequestOption,
) (*discordgo.Message, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	msg, ok := d.messages[channelID+":"+messageID]
	if !ok {
		return nil, fmt.Errorf("message %s not found in channel %s", messageID, channelID)
	}
	return msg, nil
}

func (d *mockDiscordSession) GuildRoles(
	guildID string,
	_ ...discordgo.RequestOption,
) ([]*discordgo.Role, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.guildRoles[guildID], nil
}

func (d *mockDiscordSession) SetHTTPClient(_ *http.Client) {}

func (d *mockDiscordSession) SetLogLevel(_ slog.Level) error {
	return nil
}

func (d *mockDiscordSession) BotUserID() string {
	return testBotUserID
}

// mockTranslationClient implements TranslationClient, returning canned
// completion content keyed by a substring of the prompt.
type mockTranslationClient struct {
	mu sync.Mutex

	// PromptResponses maps an input substring to the raw completion
	// content returned for prompts containing it
	PromptResponses map[string]string

	// RequestErr, when set, fails every request
	RequestErr error

	requests []openai.ChatCompletionRequest
}

func newMockTranslationClient() *mockTranslationClient {
	return &mockTranslationClient{
		PromptResponses: map[string]string{
			"Hola amigos": `{"language": "Spanish", "text": "Hello friends"}`,
			"Bonjour":     `{"language": "French", "text": "Hello"}`,
			"Hello there": `{"language": "English", "text": "Hello there"}`,
		},
	}
}

func (c *mockTranslationClient) CreateChatCompletion(
	_ context.Context,
	request openai.ChatCompletionRequest,
) (openai.ChatCompletionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, request)

	if c.RequestErr != nil {
		return openai.ChatCompletionResponse{}, c.RequestErr
	}

	prompt := ""
	if len(request.Messages) > 0 {
		prompt = request.Messages[0].Content
	}
	for input, response := range c.PromptResponses {
		if strings.Contains(prompt, input) {
			return openai.ChatCompletionResponse{
				Choices: []openai.ChatCompletionChoice{
					{
						Message: openai.ChatCompletionMessage{
							Role:    openai.ChatMessageRoleAssistant,
							Content: response,
						},
					},
				},
			}, nil
		}
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{
				Message: openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleAssistant,
					Content: `{"language": "Unknown", "text": "(untranslated)"}`,
				},
			},
		},
	}, nil
}

func (c *mockTranslationClient) requestCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.requests)
}
