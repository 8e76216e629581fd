package cmds

import (
	"github.com/pkg/errors"

	"github.com/go-go-golems/chatdesk/pkg/backend"
	"github.com/go-go-golems/chatdesk/pkg/events"
	"github.com/go-go-golems/chatdesk/pkg/profile"
	"github.com/go-go-golems/chatdesk/pkg/reply"
	"github.com/go-go-golems/chatdesk/pkg/session"
	"github.com/go-go-golems/chatdesk/pkg/settings"
)

// App bundles the stores and the orchestrator driven by the CLI commands.
type App struct {
	Chats   *session.Store
	Profile *profile.Store
	Replies *reply.Orchestrator
}

// NewApp wires the stores and the orchestrator for s, publishing every event on p.
func NewApp(s *settings.Settings, p events.Publisher) (*App, error) {
	b, err := backend.New(s)
	if err != nil {
		return nil, errors.Wrap(err, "could not create backend")
	}

	window, err := backend.NewWindow(s.HistoryMaxTokens, s.HistoryMaxMessages)
	if err != nil {
		return nil, err
	}

	chats := session.NewStore(session.WithPublisher(p))
	return &App{
		Chats:   chats,
		Profile: profile.NewStore(profile.WithPublisher(p), profile.WithName(s.UserName)),
		Replies: reply.NewOrchestrator(chats, b,
			reply.WithPublisher(p),
			reply.WithReplyTimeout(s.ReplyTimeout),
			reply.WithHistoryWindow(window),
		),
	}, nil
}
