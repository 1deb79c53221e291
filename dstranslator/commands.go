package dstranslator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	noticeReplyRequired     = "You need to reply to a message to use this command."
	noticeEmptySource       = "The replied-to message is empty."
	noticeAlreadyEnglish    = "The message is already in English."
	noticeTranslationFailed = "Sorry, I couldn't translate that. Please try again later."
	noticeNoEvents          = "No scheduled events in this channel."
	noticeInternalError     = "An error occurred while processing your request."
)

// replyNotice sends a short human-readable notice as a reply to the
// invoking message. Failures here are logged and dropped; there's
// nothing sensible left to tell the user.
func (d *DSTranslator) replyNotice(
	ctx context.Context,
	m *discordgo.MessageCreate,
	notice string,
) {
	if err := d.discord.channelMessageReply(
		m.ChannelID,
		notice,
		m.Reference(),
	); err != nil {
		_, logger := d.getLogger(ctx)
		logger.ErrorContext(ctx, "error sending notice", tint.Err(err))
	}
}

// resolveReplyTarget fetches the message a translate command replies
// to. A nil message with a nil error means the command wasn't a reply;
// the caller sends the usage notice.
func (d *DSTranslator) resolveReplyTarget(
	ctx context.Context,
	m *discordgo.MessageCreate,
) (*discordgo.Message, error) {
	ref, err := d.discord.referencedMessage(m)
	if err != nil {
		_, logger := d.getLogger(ctx)
		logger.ErrorContext(ctx, "error fetching replied-to message", tint.Err(err))
		return nil, err
	}
	return ref, nil
}

// handleTranslateToEnglish implements the `en` command: translate the
// replied-to message to English, detecting its source language.
func (d *DSTranslator) handleTranslateToEnglish(
	ctx context.Context,
	m *discordgo.MessageCreate,
	_ []string,
) {
	ctx, logger := d.getLogger(ctx)

	target, err := d.resolveReplyTarget(ctx, m)
	if err != nil {
		d.replyNotice(ctx, m, noticeInternalError)
		return
	}
	if target == nil {
		d.replyNotice(ctx, m, noticeReplyRequired)
		return
	}

	result, err := d.translator.TranslateToEnglish(ctx, target.Content)
	switch {
	case errors.Is(err, ErrEmptySourceText):
		d.replyNotice(ctx, m, noticeEmptySource)
		return
	case err != nil:
		logger.ErrorContext(ctx, "translation failed", tint.Err(err))
		d.replyNotice(ctx, m, noticeTranslationFailed)
		return
	}

	if strings.EqualFold(result.Language, DefaultTargetLanguage) {
		d.replyNotice(ctx, m, noticeAlreadyEnglish)
		return
	}

	// the reply threads onto the original message, not the command, so
	// readers can trace what was translated
	if sendErr := d.discord.channelMessageReply(
		target.ChannelID,
		fmt.Sprintf("Translated from %s:\n> %s", result.Language, result.Text),
		target.Reference(),
	); sendErr != nil {
		logger.ErrorContext(ctx, "error sending translation reply", tint.Err(sendErr))
	}
}

// handleTranslateToLanguage implements `t <language>` / `translate
// <language>`: translate the replied-to message into the given
// free-text language name.
func (d *DSTranslator) handleTranslateToLanguage(
	ctx context.Context,
	m *discordgo.MessageCreate,
	args []string,
) {
	ctx, logger := d.getLogger(ctx)

	targetLanguage := strings.TrimSpace(strings.Join(args, " "))
	if targetLanguage == "" {
		d.replyNotice(ctx, m, d.commands["t"].usage)
		return
	}

	target, err := d.resolveReplyTarget(ctx, m)
	if err != nil {
		d.replyNotice(ctx, m, noticeInternalError)
		return
	}
	if target == nil {
		d.replyNotice(ctx, m, noticeReplyRequired)
		return
	}

	result, err := d.translator.TranslateToLanguage(ctx, target.Content, targetLanguage)
	switch {
	case errors.Is(err, ErrEmptySourceText):
		d.replyNotice(ctx, m, noticeEmptySource)
		return
	case err != nil:
		logger.ErrorContext(ctx, "translation failed", tint.Err(err))
		d.replyNotice(ctx, m, noticeTranslationFailed)
		return
	}

	if sendErr := d.discord.channelMessageReply(
		target.ChannelID,
		fmt.Sprintf("Translated to %s:\n> %s", targetLanguage, result.Text),
		target.Reference(),
	); sendErr != nil {
		logger.ErrorContext(ctx, "error sending translation reply", tint.Err(sendErr))
	}
}

// handleAutoTranslation translates a Translator-role member's message
// to English and replies in-thread. Messages already in English, and
// messages with no translatable content, produce no reply at all.
func (d *DSTranslator) handleAutoTranslation(
	ctx context.Context,
	m *discordgo.MessageCreate,
) {
	ctx, logger := d.getLogger(ctx)

	result, err := d.translator.TranslateToEnglish(ctx, m.Content)
	switch {
	case errors.Is(err, ErrEmptySourceText):
		return
	case err != nil:
		logger.ErrorContext(ctx, "auto-translation failed", tint.Err(err))
		d.replyNotice(ctx, m, noticeTranslationFailed)
		return
	}

	if strings.EqualFold(result.Language, DefaultTargetLanguage) {
		return
	}

	if sendErr := d.discord.channelMessageReply(
		m.ChannelID,
		fmt.Sprintf("> %s", result.Text),
		m.Reference(),
	); sendErr != nil {
		logger.ErrorContext(ctx, "error sending auto-translation", tint.Err(sendErr))
	}
}

// handleScheduleEvent implements
// `schedule <YYYY-MM-DD> <HH:MM> <@role>... <message>`.
func (d *DSTranslator) handleScheduleEvent(
	ctx context.Context,
	m *discordgo.MessageCreate,
	args []string,
) {
	ctx, logger := d.getLogger(ctx)

	fireAt, roleTargets, message, err := parseScheduleArgs(args)
	if err != nil {
		var usage UsageError
		if errors.As(err, &usage) {
			d.replyNotice(ctx, m, usage.Hint)
			return
		}
		logger.ErrorContext(ctx, "error parsing schedule args", tint.Err(err))
		d.replyNotice(ctx, m, noticeInternalError)
		return
	}

	event, err := d.scheduler.Schedule(ctx, m.ChannelID, fireAt, roleTargets, message)
	if err != nil {
		var usage UsageError
		if errors.As(err, &usage) {
			d.replyNotice(ctx, m, usage.Hint)
			return
		}
		logger.ErrorContext(ctx, "error scheduling event", tint.Err(err))
		d.replyNotice(ctx, m, noticeInternalError)
		return
	}

	d.replyNotice(
		ctx,
		m,
		fmt.Sprintf(
			"Scheduled event **#%d** for **%s UTC**\nMessage: %s",
			event.SequenceNumber,
			event.FireTime().Format(scheduleTimeLayout),
			event.Message,
		),
	)
}

// handleListEvents implements `events`: a numbered listing of the
// channel's pending events. Fired and cancelled events never appear.
func (d *DSTranslator) handleListEvents(
	ctx context.Context,
	m *discordgo.MessageCreate,
	_ []string,
) {
	ctx, logger := d.getLogger(ctx)

	events, err := d.scheduler.Pending(ctx, m.ChannelID)
	if err != nil {
		logger.ErrorContext(ctx, "error listing events", tint.Err(err))
		d.replyNotice(ctx, m, noticeInternalError)
		return
	}
	if len(events) == 0 {
		d.replyNotice(ctx, m, noticeNoEvents)
		return
	}

	lines := make([]string, 0, len(events)+1)
	lines = append(lines, "**Scheduled events:**")
	for i := range events {
		event := &events[i]
		lines = append(
			lines,
			fmt.Sprintf(
				"%d: %s UTC - %s %s",
				event.SequenceNumber,
				event.FireTime().Format(scheduleTimeLayout),
				event.RoleTargets.Mentions(),
				event.Message,
			),
		)
	}
	d.replyNotice(ctx, m, strings.Join(lines, "\n"))
}

// handleCancelEvent implements `cancel <sequence number>`.
func (d *DSTranslator) handleCancelEvent(
	ctx context.Context,
	m *discordgo.MessageCreate,
	args []string,
) {
	ctx, logger := d.getLogger(ctx)

	seq, err := parseCancelArgs(args)
	if err != nil {
		var usage UsageError
		if errors.As(err, &usage) {
			d.replyNotice(ctx, m, usage.Hint)
			return
		}
		d.replyNotice(ctx, m, noticeInternalError)
		return
	}

	err = d.scheduler.Cancel(ctx, m.ChannelID, seq)
	switch {
	case errors.Is(err, ErrEventNotFound):
		d.replyNotice(
			ctx,
			m,
			fmt.Sprintf(
				"Event #%d not found. Use `%sevents` to see available events.",
				seq,
				d.config.CommandPrefix,
			),
		)
	case err != nil:
		logger.ErrorContext(ctx, "error cancelling event", tint.Err(err))
		d.replyNotice(ctx, m, noticeInternalError)
	default:
		d.replyNotice(ctx, m, fmt.Sprintf("Cancelled event #%d", seq))
	}
}
