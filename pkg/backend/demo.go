package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatdesk/pkg/conversation"
)

const demoReplyFormat = "Thank you for your question: \"%s\"\n\n" +
	"This is a demo response. In a real deployment, this would connect to a language-model backend to provide medical assistance.\n\n" +
	"**Important Medical Disclaimer**: This information is for educational purposes only. " +
	"Always consult qualified healthcare professionals for personalized medical advice."

// DemoBackend answers every question with a fixed explanatory message after Delay.
type DemoBackend struct {
	Delay time.Duration
}

var _ Backend = (*DemoBackend)(nil)

func NewDemoBackend(delay time.Duration) *DemoBackend {
	return &DemoBackend{Delay: delay}
}

func (d *DemoBackend) Reply(ctx context.Context, history []conversation.Message) (string, error) {
	question, err := lastUserMessage(history)
	if err != nil {
		return "", err
	}

	if d.Delay > 0 {
		timer := time.NewTimer(d.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			log.Debug().Err(ctx.Err()).Msg("demo reply interrupted")
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Sprintf(demoReplyFormat, question.Content), nil
}
