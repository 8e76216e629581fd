package cmds

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/go-go-golems/chatdesk/pkg/events"
	"github.com/go-go-golems/chatdesk/pkg/settings"
)

func NewEventsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Run a scripted session and print every event it emits as JSON",
		Long: "Runs a short scripted session (rename, two chats, a reply, a delete) and dumps the raw events.\n" +
			"The echo backend is used unless --backend is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			verbose, _ := cmd.Flags().GetBool("verbose")

			v := viper.GetViper()
			s, err := settings.FromViper(v)
			if err != nil {
				return err
			}
			if !v.IsSet(settings.KeyBackend) {
				s = s.WithBackend(settings.BackendEcho)
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
			router.AddHandler("dump", events.TopicChat, router.DumpRawEvents(cmd.OutOrStdout()))

			app, err := NewApp(s, pm)
			if err != nil {
				return err
			}

			return runWithRouter(cmd.Context(), router, func(ctx context.Context) error {
				return runScript(ctx, app)
			})
		},
	}

	cmd.Flags().Bool("verbose", false, "Keep timestamps and sequence numbers in the output")

	return cmd
}

// runScript exercises every store and orchestrator operation once.
func runScript(ctx context.Context, app *App) error {
	if err := app.Profile.SetName("Alice"); err != nil {
		return err
	}

	first := app.Chats.CreateChat()
	h, err := app.Replies.Submit(ctx, first, "What are the symptoms of dehydration?")
	if err != nil {
		return err
	}
	msg, err := h.Wait()
	if err != nil {
		return errors.Wrap(err, "scripted reply failed")
	}
	log.Debug().Str("reply", msg.Content).Msg("scripted reply received")

	second := app.Chats.CreateChat()
	if err := app.Chats.SelectChat(first); err != nil {
		return err
	}
	if err := app.Chats.DeleteChat(second); err != nil {
		return err
	}
	if err := app.Chats.DeleteChat(first); err != nil {
		return err
	}

	app.Replies.Wait()
	return nil
}
