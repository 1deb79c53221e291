package dstranslator

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReferencedMessage(content string) *discordgo.Message {
	return &discordgo.Message{
		ID:        "msg-src",
		ChannelID: testChannelID,
		GuildID:   testGuildID,
		Content:   content,
		Author:    &discordgo.User{ID: "user-2", Username: "someone else"},
	}
}

func TestTranslateToEnglishCommand(t *testing.T) {
	t.Parallel()
	bot, session, _ := newTestBot(t)
	ctx := context.Background()

	m := asReplyTo(newTestMessage("!en"), newReferencedMessage("Bonjour"))
	bot.handleDiscordMessage(ctx, m)

	replies := session.sentReplies()
	require.Len(t, replies, 1)
	assert.Equal(t, "Translated from French:\n> Hello", replies[0].Content)
	assert.Equal(t, testChannelID, replies[0].ChannelID)

	// the translation threads onto the original message, not the command
	require.NotNil(t, replies[0].Reference)
	assert.Equal(t, "msg-src", replies[0].Reference.MessageID)
}

func TestTranslateToEnglishCommandRequiresReply(t *testing.T) {
	t.Parallel()
	bot, session, client := newTestBot(t)
	ctx := context.Background()

	bot.handleDiscordMessage(ctx, newTestMessage("!en"))

	replies := session.sentReplies()
	require.Len(t, replies, 1)
	assert.Equal(t, noticeReplyRequired, replies[0].Content)
	assert.Zero(t, client.requestCount())
}

func TestTranslateToEnglishCommandAlreadyEnglish(t *testing.T) {
	t.Parallel()
	bot, session, _ := newTestBot(t)
	ctx := context.Background()

	m := asReplyTo(newTestMessage("!en"), newReferencedMessage("Hello there"))
	bot.handleDiscordMessage(ctx, m)

	replies := session.sentReplies()
	require.Len(t, replies, 1)
	assert.Equal(t, noticeAlreadyEnglish, replies[0].Content)
}

func TestTranslateToEnglishCommandEmptySource(t *testing.T) {
	t.Parallel()
	bot, session, client := newTestBot(t)
	ctx := context.Background()

	m := asReplyTo(newTestMessage("!en"), newReferencedMessage("🎉🎉"))
	bot.handleDiscordMessage(ctx, m)

	replies := session.sentReplies()
	require.Len(t, replies, 1)
	assert.Equal(t, noticeEmptySource, replies[0].Content)
	assert.Zero(t, client.requestCount())
}

func TestTranslateToEnglishCommandProviderFailure(t *testing.T) {
	t.Parallel()
	bot, session, client := newTestBot(t)
	ctx := context.Background()
	client.RequestErr = errors.New("quota exceeded")

	m := asReplyTo(newTestMessage("!en"), newReferencedMessage("Bonjour"))
	bot.handleDiscordMessage(ctx, m)

	replies := session.sentReplies()
	require.Len(t, replies, 1)
	assert.Equal(t, noticeTranslationFailed, replies[0].Content)
	assert.Equal(t, 1, client.requestCount())
}

func TestTranslateToEnglishCommandFetchesUninlinedReply(t *testing.T) {
	t.Parallel()
	bot, session, _ := newTestBot(t)
	ctx := context.Background()

	// the gateway didn't inline the referenced message; the handler
	// falls back to a channel fetch
	referenced := newReferencedMessage("Bonjour")
	session.messages[testChannelID+":"+referenced.ID] = referenced

	m := newTestMessage("!en")
	m.MessageReference = &discordgo.MessageReference{
		MessageID: referenced.ID,
		ChannelID: referenced.ChannelID,
		GuildID:   referenced.GuildID,
	}
	bot.handleDiscordMessage(ctx, m)

	replies := session.sentReplies()
	require.Len(t, replies, 1)
	assert.Equal(t, "Translated from French:\n> Hello", replies[0].Content)
}

func TestTranslateToLanguageCommand(t *testing.T) {
	t.Parallel()
	bot, session, client := newTestBot(t)
	ctx := context.Background()
	client.PromptResponses = map[string]string{
		"into Spanish": `{"text": "Hola"}`,
	}

	for _, command := range []string{"!t Spanish", "!translate Spanish"} {
		m := asReplyTo(newTestMessage(command), newReferencedMessage("Hello"))
		bot.handleDiscordMessage(ctx, m)
	}

	replies := session.sentReplies()
	require.Len(t, replies, 2)
	for _, reply := range replies {
		assert.Equal(t, "Translated to Spanish:\n> Hola", reply.Content)
		require.NotNil(t, reply.Reference)
		assert.Equal(t, "msg-src", reply.Reference.MessageID)
	}
}

func TestTranslateToLanguageCommandRequiresLanguage(t *testing.T) {
	t.Parallel()
	bot, session, client := newTestBot(t)
	ctx := context.Background()

	m := asReplyTo(newTestMessage("!t"), newReferencedMessage("Hello"))
	bot.handleDiscordMessage(ctx, m)

	replies := session.sentReplies()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Content, "Usage:")
	assert.Zero(t, client.requestCount())
}

func TestScheduleCommandLifecycle(t *testing.T) {
	t.Parallel()
	bot, session, _ := newTestBot(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fixedClock(bot.scheduler, base)

	lastReply := func() sentMessage {
		t.Helper()
		replies := session.sentReplies()
		require.NotEmpty(t, replies)
		return replies[len(replies)-1]
	}

	bot.handleDiscordMessage(
		ctx,
		newTestMessage("!schedule 2025-12-25 15:30 @everyone Happy holidays!"),
	)
	assert.Equal(
		t,
		"Scheduled event **#1** for **2025-12-25 15:30 UTC**\nMessage: Happy holidays!",
		lastReply().Content,
	)

	bot.handleDiscordMessage(
		ctx,
		newTestMessage("!schedule 2025-12-31 23:00 <@&123> Countdown soon"),
	)
	assert.Contains(t, lastReply().Content, "**#2**")

	bot.handleDiscordMessage(ctx, newTestMessage("!events"))
	listing := lastReply().Content
	assert.Contains(t, listing, "**Scheduled events:**")
	assert.Contains(t, listing, "1: 2025-12-25 15:30 UTC - @everyone Happy holidays!")
	assert.Contains(t, listing, "2: 2025-12-31 23:00 UTC - <@&123> Countdown soon")

	bot.handleDiscordMessage(ctx, newTestMessage("!cancel 2"))
	assert.Equal(t, "Cancelled event #2", lastReply().Content)

	bot.handleDiscordMessage(ctx, newTestMessage("!events"))
	assert.NotContains(t, lastReply().Content, "Countdown soon")

	// cancelled events can't be cancelled again
	bot.handleDiscordMessage(ctx, newTestMessage("!cancel 2"))
	assert.Equal(
		t,
		fmt.Sprintf(
			"Event #2 not found. Use `%sevents` to see available events.",
			DefaultCommandPrefix,
		),
		lastReply().Content,
	)
}

func TestScheduleCommandRejectsPast(t *testing.T) {
	t.Parallel()
	bot, session, _ := newTestBot(t)
	ctx := context.Background()

	fixedClock(bot.scheduler, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	bot.handleDiscordMessage(
		ctx,
		newTestMessage("!schedule 2025-12-25 15:30 @everyone Too late"),
	)

	replies := session.sentReplies()
	require.Len(t, replies, 1)
	assert.Equal(t, "You cannot schedule an event in the past!", replies[0].Content)

	// nothing was stored
	bot.handleDiscordMessage(ctx, newTestMessage("!events"))
	assert.Equal(t, noticeNoEvents, session.sentReplies()[1].Content)
}

func TestScheduleCommandBadArgs(t *testing.T) {
	t.Parallel()
	bot, session, _ := newTestBot(t)
	ctx := context.Background()

	for _, content := range []string{
		"!schedule",
		"!schedule 2025-12-25",
		"!schedule tomorrow 15:30 @everyone party",
		"!schedule 2025-12-25 15:30 no mentions here",
		"!schedule 2025-12-25 15:30 @everyone",
	} {
		bot.handleDiscordMessage(ctx, newTestMessage(content))
	}

	replies := session.sentReplies()
	require.Len(t, replies, 5)
	for _, reply := range replies {
		assert.NotEmpty(t, reply.Content)
		assert.NotContains(t, reply.Content, "Scheduled event")
	}
}

func TestEventsCommandScopedToChannel(t *testing.T) {
	t.Parallel()
	bot, session, _ := newTestBot(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	fixedClock(bot.scheduler, base)

	_, err := bot.scheduler.Schedule(
		ctx,
		"channel-2",
		base.Add(time.Hour),
		RoleMentions{"everyone"},
		"somewhere else",
	)
	require.NoError(t, err)

	bot.handleDiscordMessage(ctx, newTestMessage("!events"))

	replies := session.sentReplies()
	require.Len(t, replies, 1)
	assert.Equal(t, noticeNoEvents, replies[0].Content)
}

func TestCancelCommandBadArgs(t *testing.T) {
	t.Parallel()
	bot, session, _ := newTestBot(t)
	ctx := context.Background()

	bot.handleDiscordMessage(ctx, newTestMessage("!cancel first"))

	replies := session.sentReplies()
	require.Len(t, replies, 1)
	assert.Contains(t, replies[0].Content, "not a valid event number")
}
