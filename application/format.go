package application

import (
	"fmt"
	"strings"

	"github.com/CedricFinance/pollwatch/domain/entities"
)

// FormatUpdate renders a poll update in Slack mrkdwn. Sections are only
// present when they have entries and always come in the same order.
func FormatUpdate(url string, snapshot entities.Snapshot, diff entities.Diff) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Doodle Poll update <%s|%s>:\n", url, mdEscape(snapshot.Title))

	if len(diff.Added) > 0 {
		added := make([]string, len(diff.Added))
		for i, p := range diff.Added {
			added[i] = fmt.Sprintf("%s (%s)", mdEscape(p.Name), mdEscape(p.Preferences))
		}
		b.WriteString("New participants:\n " + strings.Join(added, "\n ") + "\n")
	}

	if len(diff.Removed) > 0 {
		removed := make([]string, len(diff.Removed))
		for i, p := range diff.Removed {
			removed[i] = mdEscape(p.Name)
		}
		b.WriteString("Removed participants: " + strings.Join(removed, ", ") + "\n")
	}

	if len(diff.Changed) > 0 {
		changed := make([]string, len(diff.Changed))
		for i, c := range diff.Changed {
			lines := []string{fmt.Sprintf(" %s (%s):", mdEscape(c.Participant.Name), mdEscape(c.Participant.Preferences))}
			for _, change := range c.Changes {
				lines = append(lines, fmt.Sprintf("  %s: *%s*", mdEscape(change.Label), mdEscape(change.NewValue)))
			}
			changed[i] = strings.Join(lines, "\n")
		}
		b.WriteString("Changed votes:\n" + strings.Join(changed, "\n") + "\n")
	}

	return strings.TrimSuffix(b.String(), "\n")
}

var mdReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func mdEscape(s string) string {
	return mdReplacer.Replace(s)
}
