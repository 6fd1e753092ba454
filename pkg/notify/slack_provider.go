package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	goslack "github.com/slack-go/slack"
)

// SlackProvider posts a notification payload to a Slack channel, honouring
// Retry-After on 429 the way the SDK surfaces it as a RateLimitedError
// (spec.md §4.10). Grounded on pkg/slack.Client's thin-wrapper-plus-timeout
// idiom, generalized from that package's session-report blocks to a
// generic key/value summary.
type SlackProvider struct {
	newClient func(token string) *goslack.Client
}

// NewSlackProvider builds a provider; each Send constructs its own client
// from the channel's configured token so multiple tenants' Slack apps can
// share one provider instance.
func NewSlackProvider() *SlackProvider {
	return &SlackProvider{newClient: goslack.New}
}

func (p *SlackProvider) Send(ctx context.Context, channel Channel, payload Payload) DeliveryResult {
	token := channel.Config["token"]
	channelID := channel.Config["channelId"]
	if token == "" || channelID == "" {
		return DeliveryResult{Success: false, Attempt: 1, Error: "notify: slack channel missing token/channelId"}
	}

	ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
	defer cancel()

	client := p.newClient(token)
	blocks := summaryBlocks(payload)

	for attempt := 1; attempt <= 2; attempt++ {
		_, _, err := client.PostMessageContext(ctx, channelID, goslack.MsgOptionBlocks(blocks...))
		if err == nil {
			return DeliveryResult{Success: true, Attempt: attempt, HTTPStatus: 200}
		}

		var rle *goslack.RateLimitedError
		if errors.As(err, &rle) && attempt == 1 {
			select {
			case <-time.After(rle.RetryAfter):
				continue
			case <-ctx.Done():
				return DeliveryResult{Success: false, Attempt: attempt, HTTPStatus: 429, Error: "notify: context done while honoring Retry-After"}
			}
		}
		if errors.As(err, &rle) {
			return DeliveryResult{Success: false, Attempt: attempt, HTTPStatus: 429, Error: fmt.Sprintf("rate limited, retry after %s", rle.RetryAfter)}
		}
		return DeliveryResult{Success: false, Attempt: attempt, Error: err.Error()}
	}
	return DeliveryResult{Success: false, Attempt: 2, Error: "notify: unreachable"}
}

func summaryBlocks(payload Payload) []goslack.Block {
	text := fmt.Sprintf("*%v*\n%v", payload["title"], payload["message"])
	return []goslack.Block{
		goslack.NewSectionBlock(goslack.NewTextBlockObject(goslack.MarkdownType, text, false, false), nil, nil),
	}
}
