package cmds

import (
	"context"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/chatdesk/pkg/events"
	"github.com/go-go-golems/chatdesk/pkg/settings"
)

func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session on stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			noWait, _ := cmd.Flags().GetBool("no-wait")
			verbose, _ := cmd.Flags().GetBool("verbose")

			s, err := settings.FromViper(viper.GetViper())
			if err != nil {
				return err
			}

			router, err := events.NewEventRouter(events.WithVerbose(verbose))
			if err != nil {
				return err
			}
			defer func() {
				_ = router.Close()
			}()

			pm := events.NewPublisherManager()
			pm.SubscribePublisher(events.TopicChat, router.Publisher)
			router.AddEventHandler("log-events", logEvent)

			app, err := NewApp(s, pm)
			if err != nil {
				return err
			}

			repl := &REPL{
				App:         app,
				In:          cmd.InOrStdin(),
				Out:         cmd.OutOrStdout(),
				Interactive: isInteractive(cmd.InOrStdin()),
				NoWait:      noWait,
			}

			return runWithRouter(cmd.Context(), router, repl.Run)
		},
	}

	cmd.Flags().Bool("no-wait", false, "Return to the prompt without waiting for replies")
	cmd.Flags().Bool("verbose", false, "Log watermill internals")

	return cmd
}

// isInteractive reports whether in is a terminal. Readers that are not files
// never are.
func isInteractive(in io.Reader) bool {
	f, ok := in.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// runWithRouter runs the router and f side by side. f starts once the router
// is running; the router stops when f returns.
func runWithRouter(ctx context.Context, router *events.EventRouter, f func(ctx context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		defer cancel()
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		select {
		case <-router.Running():
		case <-ctx.Done():
			return nil
		}
		return f(ctx)
	})

	return eg.Wait()
}

func logEvent(ev events.Event) error {
	if e, ok := ev.(*events.EventReplyFailed); ok {
		log.Warn().Str("chat_id", e.ChatID()).Str("error", e.Error).Msg("reply failed")
		return nil
	}

	l := log.Debug().Object("event", ev)
	switch e := ev.(type) {
	case *events.EventMessageAppended:
		l = l.Str("role", e.Role).Int("index", e.Index)
	case *events.EventProfileUpdated:
		l = l.Str("name", e.Name)
	}
	l.Msg("event")
	return nil
}
