package entities

import "fmt"

var preferenceLabels = map[rune]string{
	'y': "Yes",
	'n': "No",
	'i': "If-Need-Be",
}

// PreferenceLabel returns the display value of a preference character.
// Unknown characters are returned as is.
func PreferenceLabel(preference rune) string {
	if label, ok := preferenceLabels[preference]; ok {
		return label
	}
	return string(preference)
}

type OptionChange struct {
	OptionIndex int
	Label       string
	NewValue    string
}

type ParticipantChange struct {
	Participant Participant
	Previous    Participant
	Changes     []OptionChange
}

type Diff struct {
	Added   []Participant
	Removed []Participant
	Changed []ParticipantChange
}

func (d Diff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// DiffSnapshots compares two versions of the same poll. Added and Changed
// follow the order of current, Removed the order of previous.
func DiffSnapshots(previous, current Snapshot) Diff {
	previousById := make(map[ParticipantID]Participant, len(previous.Participants))
	for _, p := range previous.Participants {
		previousById[p.Id] = p
	}

	currentById := make(map[ParticipantID]Participant, len(current.Participants))
	for _, p := range current.Participants {
		currentById[p.Id] = p
	}

	var diff Diff

	for _, p := range current.Participants {
		old, found := previousById[p.Id]
		if !found {
			diff.Added = append(diff.Added, p)
			continue
		}

		if old.Preferences != p.Preferences {
			diff.Changed = append(diff.Changed, ParticipantChange{
				Participant: p,
				Previous:    old,
				Changes:     optionChanges(old.Preferences, p.Preferences, current.OptionsText),
			})
		}
	}

	for _, p := range previous.Participants {
		if _, found := currentById[p.Id]; !found {
			diff.Removed = append(diff.Removed, p)
		}
	}

	return diff
}

func optionChanges(previous, current string, options []string) []OptionChange {
	oldPrefs := []rune(previous)
	newPrefs := []rune(current)

	var changes []OptionChange
	for i, pref := range newPrefs {
		if i < len(oldPrefs) && oldPrefs[i] == pref {
			continue
		}
		changes = append(changes, OptionChange{
			OptionIndex: i,
			Label:       optionLabel(options, i),
			NewValue:    PreferenceLabel(pref),
		})
	}

	return changes
}

func optionLabel(options []string, i int) string {
	if i < len(options) {
		return options[i]
	}
	return fmt.Sprintf("Option %d", i+1)
}
