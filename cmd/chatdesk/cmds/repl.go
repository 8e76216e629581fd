package cmds

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/chatdesk/pkg/conversation"
	"github.com/go-go-golems/chatdesk/pkg/errs"
	"github.com/go-go-golems/chatdesk/pkg/reply"
	"github.com/go-go-golems/chatdesk/pkg/session"
)

const shortIDLength = 8

const replHelp = `commands:
  /new              create a chat and select it
  /list             list chats, newest first
  /select <id>      select the chat whose id starts with <id>
  /delete [<id>]    delete a chat, the selected one by default
  /show             print the selected chat
  /name <name>      change your display name
  /whoami           print your display name
  /quit             leave
anything else is sent to the selected chat`

// REPL reads one command or message per line from In and writes results to Out.
type REPL struct {
	App *App
	In  io.Reader
	Out io.Writer
	// Interactive prints a prompt before each line.
	Interactive bool
	// NoWait returns to the prompt without waiting for the assistant reply.
	NoWait bool
}

// Run processes lines until /quit, end of input or ctx is done. Outstanding
// replies are awaited before returning.
func (r *REPL) Run(ctx context.Context) error {
	defer r.App.Replies.Wait()

	scanner := bufio.NewScanner(r.In)
	for {
		if r.Interactive {
			fmt.Fprintf(r.Out, "%s> ", r.App.Profile.GetProfile().Name)
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := r.command(line)
			if err != nil {
				fmt.Fprintf(r.Out, "error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := r.send(ctx, line); err != nil {
			fmt.Fprintf(r.Out, "error: %v\n", err)
		}
	}
}

func (r *REPL) command(line string) (bool, error) {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch name {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Fprintln(r.Out, replHelp)

	case "/new":
		id := r.App.Chats.CreateChat()
		fmt.Fprintf(r.Out, "created chat %s\n", shortID(id))

	case "/list":
		chats := r.App.Chats.ListChats()
		if len(chats) == 0 {
			fmt.Fprintln(r.Out, "no chats")
			return false, nil
		}
		selected := r.App.Chats.SelectedID()
		for _, c := range chats {
			marker := " "
			if c.ID == selected {
				marker = "*"
			}
			pending := ""
			if r.App.Replies.Pending(c.ID) {
				pending = " (waiting for reply)"
			}
			fmt.Fprintf(r.Out, "%s %s  %-33s %d messages%s\n", marker, shortID(c.ID), c.Title, len(c.Messages), pending)
		}

	case "/select":
		id, err := r.resolve(arg)
		if err != nil {
			return false, err
		}
		if err := r.App.Chats.SelectChat(id); err != nil {
			return false, err
		}
		chat, _ := r.App.Chats.GetChat(id)
		fmt.Fprintf(r.Out, "selected %s %s\n", shortID(id), chat.Title)

	case "/delete":
		id := r.App.Chats.SelectedID()
		if arg != "" {
			var err error
			id, err = r.resolve(arg)
			if err != nil {
				return false, err
			}
		}
		if id == "" {
			return false, errors.New("no chat selected")
		}
		if err := r.App.Chats.DeleteChat(id); err != nil {
			return false, err
		}
		fmt.Fprintln(r.Out, "Chat deleted")

	case "/show":
		chat, ok := r.App.Chats.GetSelected()
		if !ok {
			fmt.Fprintln(r.Out, "no chat selected")
			return false, nil
		}
		fmt.Fprintf(r.Out, "# %s (%s)\n", chat.Title, shortID(chat.ID))
		for _, m := range chat.Messages {
			fmt.Fprintln(r.Out, m.String())
		}

	case "/name":
		if err := r.App.Profile.SetName(arg); err != nil {
			return false, err
		}
		fmt.Fprintln(r.Out, "Profile updated")

	case "/whoami":
		fmt.Fprintln(r.Out, r.App.Profile.GetProfile().Name)

	default:
		return false, errors.Errorf("unknown command %s, try /help", name)
	}

	return false, nil
}

// send submits text to the selected chat, creating one first if none is selected.
func (r *REPL) send(ctx context.Context, text string) error {
	id := r.App.Chats.SelectedID()
	if id == "" {
		id = r.App.Chats.CreateChat()
		log.Debug().Str("chat_id", id).Msg("no chat selected, created one")
	}

	h, err := r.App.Replies.Submit(ctx, id, text)
	switch {
	case err == nil:
	case errors.Is(err, reply.ErrReplyPending):
		fmt.Fprintln(r.Out, "still waiting for the previous reply in this chat")
		return nil
	case errors.Is(err, errs.ErrInvalidInput):
		return nil
	default:
		return err
	}

	if r.NoWait {
		return nil
	}

	select {
	case <-h.Done():
	case <-ctx.Done():
		return nil
	}

	msg, err := h.Wait()
	if err != nil {
		if errors.Is(err, reply.ErrReplyDiscarded) {
			return nil
		}
		return err
	}
	fmt.Fprintln(r.Out, msg.String())
	return nil
}

// resolve maps an id prefix to the single chat id it matches.
func (r *REPL) resolve(prefix string) (string, error) {
	if prefix == "" {
		return "", &errs.ValidationError{Field: "id", Reason: "missing chat id"}
	}
	var matches []conversation.Chat
	for _, c := range r.App.Chats.ListChats() {
		if strings.HasPrefix(c.ID, prefix) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return "", &session.NotFoundError{ChatID: prefix}
	case 1:
		return matches[0].ID, nil
	default:
		return "", errors.Errorf("%d chats match %q", len(matches), prefix)
	}
}

func shortID(id string) string {
	if len(id) > shortIDLength {
		return id[:shortIDLength]
	}
	return id
}
