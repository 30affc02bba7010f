package entities

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func participant(id, name, prefs string) Participant {
	return Participant{Id: ParticipantID(id), Name: name, Preferences: prefs}
}

func TestDiffSnapshots_ChangedPreference(t *testing.T) {
	previous := Snapshot{
		Title:        "Team dinner",
		OptionsText:  []string{"Mon", "Tue"},
		Participants: []Participant{participant("1", "Alice", "yn")},
	}
	current := Snapshot{
		Title:        "Team dinner",
		OptionsText:  []string{"Mon", "Tue"},
		Participants: []Participant{participant("1", "Alice", "yy")},
	}

	diff := DiffSnapshots(previous, current)

	assert.Empty(t, diff.Added)
	assert.Empty(t, diff.Removed)
	require.Len(t, diff.Changed, 1)
	assert.Equal(t, "Alice", diff.Changed[0].Participant.Name)
	assert.Equal(t, "yn", diff.Changed[0].Previous.Preferences)
	assert.Equal(t, []OptionChange{{OptionIndex: 1, Label: "Tue", NewValue: "Yes"}}, diff.Changed[0].Changes)
	assert.False(t, diff.IsEmpty())
}

func TestDiffSnapshots_AddedParticipant(t *testing.T) {
	current := Snapshot{
		OptionsText:  []string{"Mon"},
		Participants: []Participant{participant("2", "Bob", "n")},
	}

	diff := DiffSnapshots(Snapshot{OptionsText: []string{"Mon"}}, current)

	assert.Equal(t, []Participant{participant("2", "Bob", "n")}, diff.Added)
	assert.Empty(t, diff.Removed)
	assert.Empty(t, diff.Changed)
}

func TestDiffSnapshots_IdenticalIsEmpty(t *testing.T) {
	snapshot := Snapshot{
		Title:       "Offsite",
		OptionsText: []string{"Mon", "Tue", "Wed"},
		Participants: []Participant{
			participant("1", "Alice", "yni"),
			participant("2", "Bob", "nny"),
		},
	}

	diff := DiffSnapshots(snapshot, snapshot)

	assert.True(t, diff.IsEmpty())
}

func TestDiffSnapshots_Ordering(t *testing.T) {
	previous := Snapshot{
		OptionsText: []string{"A", "B"},
		Participants: []Participant{
			participant("5", "Eve", "yy"),
			participant("1", "Alice", "nn"),
			participant("3", "Carl", "yy"),
			participant("4", "Dan", "nn"),
		},
	}
	current := Snapshot{
		OptionsText: []string{"A", "B"},
		Participants: []Participant{
			participant("7", "Gus", "yy"),
			participant("4", "Dan", "ny"),
			participant("6", "Fay", "in"),
			participant("1", "Alice", "yn"),
		},
	}

	diff := DiffSnapshots(previous, current)

	assert.Equal(t, []string{"Gus", "Fay"}, names(diff.Added))
	assert.Equal(t, []string{"Eve", "Carl"}, names(diff.Removed))
	require.Len(t, diff.Changed, 2)
	assert.Equal(t, "Dan", diff.Changed[0].Participant.Name)
	assert.Equal(t, "Alice", diff.Changed[1].Participant.Name)
	assert.Equal(t, []OptionChange{{OptionIndex: 0, Label: "A", NewValue: "Yes"}}, diff.Changed[1].Changes)
}

func TestDiffSnapshots_AddedAndRemovedPartitionSymmetricDifference(t *testing.T) {
	previous := Snapshot{Participants: []Participant{
		participant("1", "a", "y"), participant("2", "b", "y"), participant("3", "c", "y"),
	}}
	current := Snapshot{Participants: []Participant{
		participant("2", "b", "y"), participant("3", "c", "n"), participant("4", "d", "y"), participant("5", "e", "i"),
	}}

	diff := DiffSnapshots(previous, current)

	var ids []string
	for _, p := range append(diff.Added, diff.Removed...) {
		ids = append(ids, string(p.Id))
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"1", "4", "5"}, ids)
	require.Len(t, diff.Changed, 1)
	assert.Equal(t, ParticipantID("3"), diff.Changed[0].Participant.Id)
}

func TestDiffSnapshots_PreferenceEdgeCases(t *testing.T) {
	tests := []struct {
		name     string
		previous string
		current  string
		options  []string
		want     []OptionChange
	}{
		{
			name:     "unknown character passes through",
			previous: "y",
			current:  "q",
			options:  []string{"Mon"},
			want:     []OptionChange{{OptionIndex: 0, Label: "Mon", NewValue: "q"}},
		},
		{
			name:     "if need be",
			previous: "nn",
			current:  "ni",
			options:  []string{"Mon", "Tue"},
			want:     []OptionChange{{OptionIndex: 1, Label: "Tue", NewValue: "If-Need-Be"}},
		},
		{
			name:     "new option beyond previous preferences",
			previous: "y",
			current:  "yn",
			options:  []string{"Mon", "Tue"},
			want:     []OptionChange{{OptionIndex: 1, Label: "Tue", NewValue: "No"}},
		},
		{
			name:     "missing option text",
			previous: "yy",
			current:  "yn",
			options:  []string{"Mon"},
			want:     []OptionChange{{OptionIndex: 1, Label: "Option 2", NewValue: "No"}},
		},
		{
			name:     "shortened preferences",
			previous: "yn",
			current:  "y",
			options:  []string{"Mon"},
			want:     nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			previous := Snapshot{OptionsText: tt.options, Participants: []Participant{participant("1", "Alice", tt.previous)}}
			current := Snapshot{OptionsText: tt.options, Participants: []Participant{participant("1", "Alice", tt.current)}}

			diff := DiffSnapshots(previous, current)

			require.Len(t, diff.Changed, 1)
			assert.Equal(t, tt.want, diff.Changed[0].Changes)
		})
	}
}

func TestPreferenceLabel(t *testing.T) {
	assert.Equal(t, "Yes", PreferenceLabel('y'))
	assert.Equal(t, "No", PreferenceLabel('n'))
	assert.Equal(t, "If-Need-Be", PreferenceLabel('i'))
	assert.Equal(t, "?", PreferenceLabel('?'))
}

func names(participants []Participant) []string {
	var out []string
	for _, p := range participants {
		out = append(out, p.Name)
	}
	return out
}
