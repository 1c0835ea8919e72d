package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/user/supportrelay/internal/metrics"
	"github.com/user/supportrelay/internal/timings"
	"github.com/user/supportrelay/internal/types"
)

// OutboundConfig is the Slack side of outbound delivery.
type OutboundConfig struct {
	Channel   string
	ProjectID string
	Database  string
	BotID     string
}

// Outbound posts newly created user messages into the user's Slack thread,
// opening the thread on first contact.
type Outbound struct {
	threads  types.ThreadRegistry
	messages types.MessageStore
	chat     types.ChatGateway
	cfg      OutboundConfig
	metrics  *metrics.Metrics
}

func NewOutbound(threads types.ThreadRegistry, messages types.MessageStore, chat types.ChatGateway, cfg OutboundConfig, m *metrics.Metrics) *Outbound {
	return &Outbound{threads: threads, messages: messages, chat: chat, cfg: cfg, metrics: m}
}

// Handle delivers one message. Every failure ends here: the message is marked
// failed and nothing is returned to the trigger.
func (o *Outbound) Handle(ctx context.Context, event types.MessageCreated) {
	log := slog.With("user_id", string(event.Ref.UserID), "message_id", string(event.Ref.MessageID))

	if event.Message.Role != types.RoleUser {
		log.Info("skipping non-user message", "role", string(event.Message.Role))
		o.metrics.Outbound("skipped")
		return
	}
	log.Info("outbound delivery started")

	tm := timings.New(o.metrics.StepObserver(metrics.FlowOutbound))
	threadTS, err := o.deliver(ctx, event, tm)
	if err != nil {
		log.Error("outbound delivery failed", "thread_ts", string(threadTS), "error", err)
		if merr := o.messages.MarkFailed(ctx, event.Ref, types.ErrorSomethingWentWrong); merr != nil {
			log.Error("mark message failed", "error", merr)
		}
		o.metrics.Outbound("failed")
		return
	}

	log.Info("outbound delivery complete",
		"thread_ts", string(threadTS),
		"total", tm.Total().String(),
		"timings", tm,
	)
	o.metrics.Outbound("sent")
}

func (o *Outbound) deliver(ctx context.Context, event types.MessageCreated, tm *timings.Timings) (types.ThreadTS, error) {
	userID := event.Ref.UserID

	binding, err := timings.Track(tm, "getBinding", func() (*types.ThreadBinding, error) {
		return o.threads.GetBinding(ctx, userID)
	})
	if err != nil {
		return "", fmt.Errorf("get binding: %w", err)
	}

	var threadTS types.ThreadTS
	if binding != nil {
		threadTS = binding.SlackThreadTS
	} else {
		threadTS, err = o.openThread(ctx, userID, tm)
		if err != nil {
			return threadTS, err
		}
	}

	// The status only becomes sent once the post exists, so a failed post
	// always leaves the message pending for MarkFailed.
	_, err = timings.Track(tm, "postMessage", func() (types.ThreadTS, error) {
		return o.chat.PostToThread(ctx, types.Post{
			Channel:   o.cfg.Channel,
			ThreadTS:  threadTS,
			Text:      event.Message.Message,
			Username:  userUsername,
			IconEmoji: userIconEmoji,
		})
	})
	if err != nil {
		return threadTS, fmt.Errorf("post message: %w", err)
	}

	_, err = timings.Track(tm, "markSent", func() (struct{}, error) {
		return struct{}{}, o.messages.UpdateDeliveryOutcome(ctx, event.Ref, types.StatusSent, threadTS)
	})
	if err != nil {
		return threadTS, fmt.Errorf("mark sent: %w", err)
	}
	return threadTS, nil
}

// openThread posts the opener and binds the new thread to the user. If
// another delivery bound a thread first, that thread is used instead and the
// new opener stays orphaned in the channel.
func (o *Outbound) openThread(ctx context.Context, userID types.UserID, tm *timings.Timings) (types.ThreadTS, error) {
	opener := threadOpener(o.cfg.Channel, o.cfg.ProjectID, o.cfg.Database, o.cfg.BotID, userID)
	ts, err := timings.Track(tm, "openThread", func() (types.ThreadTS, error) {
		return o.chat.PostToThread(ctx, opener)
	})
	if err != nil {
		return "", fmt.Errorf("open thread: %w", err)
	}

	bound, err := timings.Track(tm, "bindThread", func() (types.ThreadTS, error) {
		return o.threads.CreateBinding(ctx, userID, ts)
	})
	if errors.Is(err, types.ErrBindingExists) {
		slog.Warn("thread already bound, using existing thread",
			"user_id", string(userID), "thread_ts", string(bound), "orphan_ts", string(ts))
		return bound, nil
	}
	if err != nil {
		return ts, fmt.Errorf("bind thread: %w", err)
	}
	return bound, nil
}
