package application

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/slack-go/slack"
)

func ParseSlashCommand(r *http.Request) (slack.SlashCommand, error) {
	return slack.SlashCommandParse(r)
}

func SecureParseSlashCommand(r *http.Request, signingSecret string) (slack.SlashCommand, error) {
	verifier, err := slack.NewSecretsVerifier(r.Header, signingSecret)
	if err != nil {
		return slack.SlashCommand{}, err
	}

	r.Body = io.NopCloser(io.TeeReader(r.Body, &verifier))

	slashCommand, err := slack.SlashCommandParse(r)
	if err != nil {
		return slack.SlashCommand{}, err
	}

	if err = verifier.Ensure(); err != nil {
		return slack.SlashCommand{}, err
	}

	return slashCommand, nil
}

func WriteError(w http.ResponseWriter, err error) {
	WriteMessage(w, fmt.Sprintf("Sorry, an error occured: %s", err))
}

func WriteMessage(w http.ResponseWriter, message string) {
	msg := slack.Msg{
		ResponseType: "ephemeral",
		Text:         message,
	}

	WriteJSON(w, msg)
}

func WriteJSON(w http.ResponseWriter, d interface{}) {
	res, err := json.Marshal(d)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(res)
}

// Slack sends links as <url> or <url|label>; shellwords would stop at the <.
var slackLinkPattern = regexp.MustCompile(`<([^<>|\s]+)(\|[^<>]*)?>`)

// Sanitize replaces the curly quotes Slack clients like to insert and unwraps
// links.
func Sanitize(str string) string {
	str = strings.NewReplacer("“", "\"", "”", "\"").Replace(str)
	return slackLinkPattern.ReplaceAllString(str, "$1")
}
