package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/user/supportrelay/internal/metrics"
	"github.com/user/supportrelay/internal/slack"
	"github.com/user/supportrelay/internal/timings"
	"github.com/user/supportrelay/internal/types"
)

const diagnosticTimeout = 10 * time.Second

// Request is one Events API delivery. Body must be the bytes as received.
type Request struct {
	Body      []byte
	Timestamp string
	Signature string
}

type Outcome int

const (
	OutcomeError Outcome = iota
	OutcomeUnauthorized
	OutcomeChallenge
	OutcomeIgnored
	OutcomeStored
	OutcomeUnbound
	OutcomeAmbiguous
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnauthorized:
		return "unauthorized"
	case OutcomeChallenge:
		return "challenge"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeStored:
		return "stored"
	case OutcomeUnbound:
		return "unbound"
	case OutcomeAmbiguous:
		return "ambiguous"
	default:
		return "error"
	}
}

// HTTPStatus is the response code Slack receives.
func (o Outcome) HTTPStatus() int {
	switch o {
	case OutcomeUnauthorized:
		return http.StatusUnauthorized
	case OutcomeChallenge, OutcomeIgnored, OutcomeStored:
		return http.StatusOK
	case OutcomeUnbound:
		return http.StatusNotFound
	case OutcomeAmbiguous:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type Result struct {
	Outcome   Outcome
	Challenge string // set for OutcomeChallenge
	UserID    types.UserID
	MessageID types.MessageID
	Err       error
}

type envelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Event     *event `json:"event"`
}

type event struct {
	Type     string `json:"type"`
	User     string `json:"user"`
	Text     string `json:"text"`
	TS       string `json:"ts"`
	ThreadTS string `json:"thread_ts"`
	Channel  string `json:"channel"`
}

// InboundConfig is the Slack side of inbound handling.
type InboundConfig struct {
	SigningSecret string
	BotID         string
	Channel       string // diagnostics go here
}

// Inbound turns staff replies in a support thread into internal messages.
type Inbound struct {
	threads  types.ThreadRegistry
	messages types.MessageStore
	chat     types.ChatGateway
	cfg      InboundConfig
	metrics  *metrics.Metrics

	diag sync.WaitGroup
}

func NewInbound(threads types.ThreadRegistry, messages types.MessageStore, chat types.ChatGateway, cfg InboundConfig, m *metrics.Metrics) *Inbound {
	return &Inbound{threads: threads, messages: messages, chat: chat, cfg: cfg, metrics: m}
}

func (in *Inbound) Handle(ctx context.Context, req Request) Result {
	res := in.handle(ctx, req)
	in.metrics.Inbound(res.Outcome.String())
	return res
}

func (in *Inbound) handle(ctx context.Context, req Request) Result {
	if !slack.VerifySignature(in.cfg.SigningSecret, req.Timestamp, req.Signature, req.Body) {
		slog.Warn("invalid slack request signature", "timestamp", req.Timestamp)
		return Result{Outcome: OutcomeUnauthorized}
	}

	var env envelope
	if err := json.Unmarshal(req.Body, &env); err != nil {
		in.diagnose(ctx, fmt.Sprintf("Error creating support message: %v", err))
		slog.Error("decode slack event", "error", err)
		return Result{Outcome: OutcomeError, Err: fmt.Errorf("decode event: %w", err)}
	}

	if env.Type == "url_verification" {
		slog.Debug("answering url verification challenge")
		return Result{Outcome: OutcomeChallenge, Challenge: env.Challenge}
	}

	ev := env.Event
	if ev == nil || ev.Type != "app_mention" || ev.ThreadTS == "" || ev.User == in.cfg.BotID {
		attrs := []any{"type", env.Type}
		if ev != nil {
			attrs = append(attrs,
				"event_type", ev.Type,
				"is_thread", ev.ThreadTS != "",
				"from_user", ev.User,
				"is_self_mention", ev.User == in.cfg.BotID,
			)
		}
		slog.Info("ignoring slack event", attrs...)
		return Result{Outcome: OutcomeIgnored}
	}

	return in.store(ctx, ev)
}

func (in *Inbound) store(ctx context.Context, ev *event) Result {
	threadTS := types.ThreadTS(ev.ThreadTS)
	log := slog.With("thread_ts", ev.ThreadTS)
	log.Info("processing slack reply", "from_user", ev.User)

	tm := timings.New(in.metrics.StepObserver(metrics.FlowInbound))

	userID, err := timings.Track(tm, "resolveUser", func() (types.UserID, error) {
		return in.threads.ResolveUserByThread(ctx, threadTS)
	})
	switch {
	case errors.Is(err, types.ErrThreadUnbound):
		in.diagnose(ctx, "No user found for thread")
		log.Error("no user found for thread")
		return Result{Outcome: OutcomeUnbound, Err: err}
	case errors.Is(err, types.ErrThreadAmbiguous):
		in.diagnose(ctx, "Multiple users found for thread")
		var amb *types.AmbiguousThreadError
		if errors.As(err, &amb) {
			log.Error("multiple users found for thread", "count", len(amb.Paths), "paths", amb.Paths)
		} else {
			log.Error("multiple users found for thread", "error", err)
		}
		return Result{Outcome: OutcomeAmbiguous, Err: err}
	case err != nil:
		return in.fail(ctx, log, "", fmt.Errorf("resolve user: %w", err))
	}
	log = log.With("user_id", string(userID))

	msg := &types.Message{
		Message:       slack.Emojify(slack.StripMention(ev.Text, in.cfg.BotID)),
		Role:          types.RoleInternal,
		Status:        types.StatusSent,
		SlackThreadTS: threadTS,
		RawMessage:    ev.Text,
	}

	id, err := timings.Track(tm, "storeMessage", func() (types.MessageID, error) {
		return in.messages.Insert(ctx, userID, msg)
	})
	if err != nil {
		return in.fail(ctx, log, userID, fmt.Errorf("store message: %w", err))
	}

	log.Info("support reply stored",
		"message_id", string(id),
		"total", tm.Total().String(),
		"timings", tm,
	)
	return Result{Outcome: OutcomeStored, UserID: userID, MessageID: id}
}

func (in *Inbound) fail(ctx context.Context, log *slog.Logger, userID types.UserID, err error) Result {
	in.diagnose(ctx, fmt.Sprintf("Error creating support message: %v", err))
	log.Error("error creating support message", "error", err)
	return Result{Outcome: OutcomeError, UserID: userID, Err: err}
}

// diagnose posts text to the support channel without delaying the webhook
// response. Failures are only logged.
func (in *Inbound) diagnose(ctx context.Context, text string) {
	if in.cfg.Channel == "" {
		slog.Warn("slack channel not set, skipping diagnostic post")
		return
	}
	in.diag.Add(1)
	go func() {
		defer in.diag.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), diagnosticTimeout)
		defer cancel()
		if err := in.chat.PostError(ctx, in.cfg.Channel, text); err != nil {
			slog.Warn("diagnostic post failed", "error", err)
		}
	}()
}

// Drain waits for outstanding diagnostic posts or until ctx ends.
func (in *Inbound) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		in.diag.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
