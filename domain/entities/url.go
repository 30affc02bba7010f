package entities

import (
	"fmt"
	"regexp"
	"strings"
)

const DefaultPollHost = "doodle.com"

// PollURLMatcher recognizes poll URLs of one host and reduces them to their
// canonical form, the part up to and including the poll id.
type PollURLMatcher struct {
	pattern *regexp.Regexp
}

func NewPollURLMatcher(host string) *PollURLMatcher {
	if host == "" {
		host = DefaultPollHost
	}
	return &PollURLMatcher{
		pattern: regexp.MustCompile(fmt.Sprintf(`^(https?://%s/poll/[A-Za-z0-9]+)`, regexp.QuoteMeta(host))),
	}
}

// Normalize returns the canonical poll URL and false when raw is not a poll
// URL. Slack wraps links as <url> or <url|label>, both are accepted.
func (m *PollURLMatcher) Normalize(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "<") && strings.HasSuffix(raw, ">") {
		raw = strings.TrimSuffix(strings.TrimPrefix(raw, "<"), ">")
		if i := strings.Index(raw, "|"); i >= 0 {
			raw = raw[:i]
		}
	}

	match := m.pattern.FindStringSubmatch(raw)
	if match == nil {
		return "", false
	}
	return match[1], true
}
