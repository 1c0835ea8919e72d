package slack

import (
	"context"
	"fmt"
	"sync"

	slackapi "github.com/slack-go/slack"

	"github.com/user/supportrelay/internal/types"
)

// Diagnostic post identity.
const (
	errorUsername  = "Error"
	errorIconEmoji = ":warning:"
)

// Adapter posts to Slack through the Web API. The client is built on first
// use and shared afterwards.
type Adapter struct {
	client func() *slackapi.Client
}

var _ types.ChatGateway = (*Adapter)(nil)

// New creates an adapter for the bot token. Options are passed to the
// slack-go client, e.g. slackapi.OptionAPIURL in tests.
func New(token string, opts ...slackapi.Option) *Adapter {
	return &Adapter{
		client: sync.OnceValue(func() *slackapi.Client {
			return slackapi.New(token, opts...)
		}),
	}
}

// PostToThread posts into post.ThreadTS, or starts a thread when it is empty,
// and returns the new message timestamp.
func (a *Adapter) PostToThread(ctx context.Context, post types.Post) (types.ThreadTS, error) {
	opts := []slackapi.MsgOption{slackapi.MsgOptionText(post.Text, false)}
	if post.ThreadTS != "" {
		opts = append(opts, slackapi.MsgOptionTS(string(post.ThreadTS)))
	}
	if post.Username != "" {
		opts = append(opts, slackapi.MsgOptionUsername(post.Username))
	}
	if post.IconEmoji != "" {
		opts = append(opts, slackapi.MsgOptionIconEmoji(post.IconEmoji))
	}
	if blocks := renderBlocks(post); len(blocks) > 0 {
		opts = append(opts, slackapi.MsgOptionBlocks(blocks...))
	}

	_, ts, err := a.client().PostMessageContext(ctx, post.Channel, opts...)
	if err != nil {
		return "", fmt.Errorf("post message to %s: %w", post.Channel, err)
	}
	if ts == "" {
		return "", fmt.Errorf("post message to %s: response has no ts", post.Channel)
	}
	return types.ThreadTS(ts), nil
}

// PostError posts a top-level diagnostic message.
func (a *Adapter) PostError(ctx context.Context, channel, text string) error {
	_, err := a.PostToThread(ctx, types.Post{
		Channel:   channel,
		Text:      text,
		Username:  errorUsername,
		IconEmoji: errorIconEmoji,
	})
	return err
}

func renderBlocks(post types.Post) []slackapi.Block {
	var blocks []slackapi.Block
	if post.Detail != "" {
		text := slackapi.NewTextBlockObject(slackapi.MarkdownType, post.Detail, false, false)
		blocks = append(blocks, slackapi.NewSectionBlock(text, nil, nil))
	}
	if post.Link != nil {
		label := slackapi.NewTextBlockObject(slackapi.PlainTextType, post.Link.Label, true, false)
		btn := slackapi.NewButtonBlockElement(post.Link.ActionID, "", label)
		btn.URL = post.Link.URL
		blocks = append(blocks, slackapi.NewActionBlock("", btn))
	}
	return blocks
}
