package dstranslator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

const scheduleTimeLayout = "2006-01-02 15:04"

// EventScheduler owns the ScheduledEvent collection: it handles the
// schedule/list/cancel operations and runs the periodic due-check loop
// that fires role pings. No other component mutates event records.
//
// Status transitions are guarded updates (`WHERE status = 'pending'`),
// so an event fires at most once even if due-check passes overlap, and
// a cancel can never land on an event that already fired.
type EventScheduler struct {
	dst    *DSTranslator
	config *SchedulerConfig
	logger *slog.Logger

	// now is the due-check clock. Tests inject fixed times here.
	now func() time.Time

	metricPingsSent    atomic.Int64
	metricFireFailures atomic.Int64
}

func newEventScheduler(
	dst *DSTranslator,
	config *SchedulerConfig,
	logHandler slog.Handler,
) *EventScheduler {
	return &EventScheduler{
		dst:    dst,
		config: config,
		logger: slog.New(logHandler).With(loggerNameKey, "scheduler"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Schedule validates and stores a new pending event, returning it with
// its assigned per-channel sequence number. Timestamps not strictly in
// the future are rejected with a UsageError and create nothing.
func (s *EventScheduler) Schedule(
	ctx context.Context,
	channelID string,
	fireAt time.Time,
	roleTargets RoleMentions,
	message string,
) (*ScheduledEvent, error) {
	if !fireAt.After(s.now()) {
		return nil, usageError("You cannot schedule an event in the past!")
	}

	event := &ScheduledEvent{
		ChannelID:   channelID,
		FireAt:      fireAt.UTC().UnixMilli(),
		RoleTargets: roleTargets,
		Message:     message,
		Status:      EventStatusPending,
	}

	// The sequence number is 1 + the highest ever assigned in this
	// channel, counting fired and cancelled rows, so numbers are never
	// reused. Assignment and insert share a transaction. With postgres,
	// concurrent inserts in one channel can race to the same number; the
	// unique index rejects the loser, which retries against the fresh
	// maximum.
	assign := func() error {
		return s.dst.writeDB.Transaction(
			ctx, func(tx *gorm.DB) error {
				var maxSeq int64
				row := tx.Model(&ScheduledEvent{}).
					Where("channel_id = ?", channelID).
					Select("coalesce(max(sequence_number), 0)").
					Row()
				if scanErr := row.Scan(&maxSeq); scanErr != nil {
					return scanErr
				}
				event.SequenceNumber = maxSeq + 1
				return tx.Create(event).Error
			},
		)
	}
	err := assign()
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		s.logger.WarnContext(
			ctx,
			"sequence number collision, retrying",
			"channel_id", channelID,
			columnScheduledEventSeq, event.SequenceNumber,
		)
		err = assign()
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "error scheduling event", tint.Err(err))
		return nil, err
	}

	s.logger.InfoContext(ctx, "scheduled event", "event", event)
	return event, nil
}

// Pending returns all pending events for the channel, ascending by
// sequence number. Fired and cancelled events never appear.
func (s *EventScheduler) Pending(
	ctx context.Context,
	channelID string,
) ([]ScheduledEvent, error) {
	var events []ScheduledEvent
	err := s.dst.db.WithContext(ctx).
		Where(
			"channel_id = ? AND status = ?",
			channelID,
			EventStatusPending,
		).
		Order("sequence_number asc").
		Find(&events).Error
	return events, err
}

// Cancel transitions a pending event to cancelled. Returns
// ErrEventNotFound when no pending event has the given sequence number
// in the channel - fired, already cancelled and never-existed all read
// identically to the user.
func (s *EventScheduler) Cancel(
	ctx context.Context,
	channelID string,
	sequenceNumber int64,
) error {
	rowsAffected, err := s.dst.writeDB.UpdatesWhere(
		ctx,
		&ScheduledEvent{},
		map[string]any{columnScheduledEventStatus: EventStatusCancelled},
		"channel_id = ? AND sequence_number = ? AND status = ?",
		channelID,
		sequenceNumber,
		EventStatusPending,
	)
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		// distinguishable in logs, identical to the user
		var existing ScheduledEvent
		findErr := s.dst.db.WithContext(ctx).Where(
			"channel_id = ? AND sequence_number = ?",
			channelID,
			sequenceNumber,
		).Take(&existing).Error
		switch {
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			s.logger.InfoContext(
				ctx,
				"cancel target does not exist",
				"channel_id", channelID,
				columnScheduledEventSeq, sequenceNumber,
			)
		case findErr != nil:
			s.logger.ErrorContext(ctx, "error looking up cancel target", tint.Err(findErr))
		default:
			s.logger.InfoContext(
				ctx,
				"cancel target already terminal",
				"event", &existing,
			)
		}
		return ErrEventNotFound
	}
	s.logger.InfoContext(
		ctx,
		"cancelled event",
		"channel_id", channelID,
		columnScheduledEventSeq, sequenceNumber,
	)
	return nil
}

// dueEvents returns pending events whose fire time has passed at the
// given instant, ordered by fire time, ties broken by sequence number.
func (s *EventScheduler) dueEvents(
	ctx context.Context,
	at time.Time,
) ([]ScheduledEvent, error) {
	var events []ScheduledEvent
	err := s.dst.db.WithContext(ctx).
		Where(
			"status = ? AND fire_at <= ?",
			EventStatusPending,
			at.UTC().UnixMilli(),
		).
		Order("fire_at asc, sequence_number asc").
		Find(&events).Error
	return events, err
}

// checkDueEvents runs one due-check pass: every pending event whose
// fire time has passed transitions to fired, exactly once, and gets its
// ping sent. A send failure leaves the event fired - it's logged, never
// retried. Returns the number of pings sent.
func (s *EventScheduler) checkDueEvents(ctx context.Context) int {
	due, err := s.dueEvents(ctx, s.now())
	if err != nil {
		s.logger.ErrorContext(ctx, "error querying due events", tint.Err(err))
		return 0
	}

	fired := 0
	for i := range due {
		event := &due[i]
		rowsAffected, updateErr := s.dst.writeDB.UpdatesWhere(
			ctx,
			&ScheduledEvent{},
			map[string]any{columnScheduledEventStatus: EventStatusFired},
			"id = ? AND status = ?",
			event.ID,
			EventStatusPending,
		)
		if updateErr != nil {
			s.logger.ErrorContext(
				ctx,
				"error transitioning event to fired",
				tint.Err(updateErr),
				"event", event,
			)
			continue
		}
		if rowsAffected == 0 {
			// another pass got here first
			s.logger.DebugContext(ctx, "event already fired", "event", event)
			continue
		}

		event.Status = EventStatusFired
		if sendErr := s.dst.discord.channelMessageSend(
			event.ChannelID,
			event.PingContent(),
		); sendErr != nil {
			s.metricFireFailures.Add(1)
			s.logger.ErrorContext(
				ctx,
				"error sending event ping",
				tint.Err(sendErr),
				"event", event,
			)
			continue
		}
		s.metricPingsSent.Add(1)
		fired++
		s.logger.InfoContext(ctx, "fired event", "event", event)
	}
	return fired
}

// watchDueEvents runs due-check passes on a fixed interval until the
// context is cancelled. A panic in one pass never takes down the loop.
func (s *EventScheduler) watchDueEvents(ctx context.Context) {
	interval := s.config.CheckInterval
	if interval <= 0 {
		interval = DefaultSchedulerCheckInterval
	}
	s.logger.InfoContext(ctx, "starting due-check loop", "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "stopping due-check loop")
			return
		case <-ticker.C:
			func() {
				defer func() {
					if rc := recover(); rc != nil {
						s.logger.ErrorContext(
							ctx,
							fmt.Sprintf("recovered from panic in due-check: %v", rc),
							"stack", string(debug.Stack()),
						)
					}
				}()
				s.checkDueEvents(ctx)
			}()
		}
	}
}
