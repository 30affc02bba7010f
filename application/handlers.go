package application

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/CedricFinance/pollwatch/domain/services"
	"github.com/gorilla/mux"
	"github.com/mattn/go-shellwords"
	"github.com/slack-go/slack"
	"go.uber.org/zap"
)

const (
	helpMessage string = "I watch Doodle polls and tell this channel when someone votes.\n- `/doodle subscribe https://doodle.com/poll/...` to get updates about a poll in this channel\n- `/doodle unsubscribe https://doodle.com/poll/...` to stop them\n- `/doodle list` to see the polls this channel follows\n\n`/newdoodle <url>` and `/removedoodle <url>` work too."
)

// bounds one post to a command's response_url
const responseTimeout = 10 * time.Second

type Server struct {
	Subscriptions *services.Subscriptions
	SigningSecret string
	Logger        *zap.Logger

	pending sync.WaitGroup
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/slack/commands", s.HandleSlashCommand).Methods(http.MethodPost)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }).Methods(http.MethodGet)

	return r
}

func (s *Server) HandleSlashCommand(w http.ResponseWriter, r *http.Request) {
	var slashCommand slack.SlashCommand
	var err error
	if s.SigningSecret == "" {
		slashCommand, err = ParseSlashCommand(r)
	} else {
		slashCommand, err = SecureParseSlashCommand(r, s.SigningSecret)
	}

	if err != nil {
		s.Logger.Warn("rejected slash command", zap.Error(err))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	args, err := shellwords.Parse(Sanitize(slashCommand.Text))
	if err != nil {
		WriteError(w, err)
		return
	}

	action, args := commandAction(slashCommand.Command, args)
	channelId := slashCommand.ChannelID

	s.Logger.Debug("slash command",
		zap.String("command", slashCommand.Command),
		zap.String("action", action),
		zap.String("channel", channelId),
		zap.String("user", slashCommand.UserID))

	switch action {
	case "help":
		WriteMessage(w, helpMessage)
	case "subscribe":
		if len(args) == 0 {
			WriteMessage(w, "Sorry, I need the link of a Doodle poll.\n"+helpMessage)
			return
		}
		s.handleSubscribe(w, r, slashCommand, args[0])
	case "unsubscribe":
		if len(args) == 0 {
			WriteMessage(w, "Sorry, I need the link of a Doodle poll.\n"+helpMessage)
			return
		}
		WriteMessage(w, s.unsubscribe(args[0], channelId))
	case "list":
		WriteMessage(w, s.list(channelId))
	default:
		WriteMessage(w, fmt.Sprintf("Sorry, I don't know %q.\n%s", action, helpMessage))
	}
}

// commandAction supports both the dedicated commands and the
// `/doodle <action> ...` form.
func commandAction(command string, args []string) (string, []string) {
	switch command {
	case "/newdoodle":
		return "subscribe", args
	case "/removedoodle":
		return "unsubscribe", args
	}

	if len(args) == 0 {
		return "help", nil
	}
	return strings.ToLower(args[0]), args[1:]
}

// handleSubscribe answers right away and reports the outcome through the
// command's response_url: loading a new poll can outlast the 3 seconds Slack
// waits for the reply. Without a response_url the outcome is the reply.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request, slashCommand slack.SlashCommand, url string) {
	channelId := slashCommand.ChannelID

	if slashCommand.ResponseURL == "" {
		WriteMessage(w, s.subscribe(r.Context(), url, channelId))
		return
	}

	if _, err := s.Subscriptions.Normalize(url); err != nil {
		WriteMessage(w, fmt.Sprintf("Sorry, %s is not a valid Doodle poll URL.", url))
		return
	}

	WriteMessage(w, "Checking the poll, I'll tell you in a moment...")

	ctx := context.WithoutCancel(r.Context())
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()

		message := &slack.WebhookMessage{Text: s.subscribe(ctx, url, channelId)}

		postCtx, cancel := context.WithTimeout(ctx, responseTimeout)
		defer cancel()
		if err := slack.PostWebhookContext(postCtx, slashCommand.ResponseURL, message); err != nil {
			s.Logger.Warn("could not send the subscribe outcome", zap.String("channel", channelId), zap.Error(err))
		}
	}()
}

// Wait blocks until the outcomes of pending commands are sent or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) subscribe(ctx context.Context, url string, channelId string) string {
	result, err := s.Subscriptions.Subscribe(ctx, url, channelId)

	var invalid services.InvalidURL
	var unreachable services.PollUnreachable
	switch {
	case errors.As(err, &invalid):
		return fmt.Sprintf("Sorry, %s is not a valid Doodle poll URL.", url)
	case errors.As(err, &unreachable):
		s.Logger.Info("poll unreachable", zap.String("url", unreachable.URL), zap.Error(unreachable.Err))
		return "Sorry, I could not load this poll. Check that the link is right and that the poll is still open."
	case err != nil:
		s.Logger.Error("subscribe failed", zap.String("url", url), zap.Error(err))
		return fmt.Sprintf("Sorry, an error occured: %s", err)
	case result.AlreadySubscribed:
		return "This channel is already subscribed to this poll."
	}

	s.Logger.Info("subscribed",
		zap.String("url", result.URL),
		zap.String("channel", channelId),
		zap.Bool("new_poll", result.Created))

	return "Successfully subscribed to doodle poll!"
}

func (s *Server) unsubscribe(url string, channelId string) string {
	err := s.Subscriptions.Unsubscribe(url, channelId)

	var invalid services.InvalidURL
	var notSubscribed services.NotSubscribed
	switch {
	case errors.As(err, &invalid):
		return fmt.Sprintf("Sorry, %s is not a valid Doodle poll URL.", url)
	case errors.As(err, &notSubscribed):
		return fmt.Sprintf("Sorry, this channel is not subscribed to %s.", notSubscribed.URL)
	case err != nil:
		return fmt.Sprintf("Sorry, an error occured: %s", err)
	}

	s.Logger.Info("unsubscribed", zap.String("url", url), zap.String("channel", channelId))

	return "Removed poll!"
}

func (s *Server) list(channelId string) string {
	urls := s.Subscriptions.ListFor(channelId)
	if len(urls) == 0 {
		return "This channel is not subscribed to any poll."
	}

	return "This channel is subscribed to:\n• " + strings.Join(urls, "\n• ")
}
