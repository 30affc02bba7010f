package entities

import (
	"bytes"
	"encoding/json"
	"time"
)

// ParticipantID accepts both numeric and string ids, Doodle has used both.
type ParticipantID string

func (id *ParticipantID) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(data, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ParticipantID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ParticipantID(n.String())
	return nil
}

type Participant struct {
	Id          ParticipantID `json:"id"`
	Name        string        `json:"name"`
	Preferences string        `json:"preferences"`
}

// Snapshot is the state of a poll at one point in time. It is never mutated
// once produced, a newer one replaces it.
type Snapshot struct {
	Title        string        `json:"title"`
	OptionsText  []string      `json:"optionsText"`
	Participants []Participant `json:"participants"`
}

type Subscription struct {
	NotifyChats []string  `json:"notifyChats"`
	LastCheck   time.Time `json:"lastCheck"`
	Data        *Snapshot `json:"data"`
}

func NewSubscription(recipient string, snapshot *Snapshot, checkedAt time.Time) Subscription {
	return Subscription{
		NotifyChats: []string{recipient},
		LastCheck:   checkedAt.UTC(),
		Data:        snapshot,
	}
}

func (s Subscription) HasRecipient(recipient string) bool {
	for _, chat := range s.NotifyChats {
		if chat == recipient {
			return true
		}
	}
	return false
}

// IsDue reports whether the poll was last checked at least staleness ago.
func (s Subscription) IsDue(now time.Time, staleness time.Duration) bool {
	return now.Sub(s.LastCheck) >= staleness
}

// Clone copies the recipient list so the copy can be handed out of the store.
// Snapshots are shared since they are immutable.
func (s Subscription) Clone() Subscription {
	clone := s
	clone.NotifyChats = append([]string(nil), s.NotifyChats...)
	return clone
}

// State is the persisted document.
type State struct {
	Polls map[string]*Subscription `json:"polls"`
}

func NewState() State {
	return State{Polls: map[string]*Subscription{}}
}
