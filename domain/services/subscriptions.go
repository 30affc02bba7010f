package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/CedricFinance/pollwatch/domain/entities"
)

type SubscribeResult struct {
	URL               string
	Created           bool
	AlreadySubscribed bool
}

type Option func(*Subscriptions)

func WithClock(now func() time.Time) Option {
	return func(s *Subscriptions) {
		s.now = now
	}
}

// Subscriptions owns the subscription records keyed by canonical poll URL.
// Changes live in memory until Flush writes the whole state to the
// repository.
type Subscriptions struct {
	mu    sync.Mutex
	polls map[string]*entities.Subscription

	// version is bumped on every mutation, flushed is the version last saved.
	version uint64
	flushed uint64
	flushMu sync.Mutex

	repository Repository
	source     SnapshotSource
	matcher    *entities.PollURLMatcher
	now        func() time.Time
}

func NewSubscriptions(repository Repository, source SnapshotSource, matcher *entities.PollURLMatcher, opts ...Option) *Subscriptions {
	s := &Subscriptions{
		polls:      map[string]*entities.Subscription{},
		repository: repository,
		source:     source,
		matcher:    matcher,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Subscriptions) Normalize(rawURL string) (string, error) {
	url, ok := s.matcher.Normalize(rawURL)
	if !ok {
		return "", InvalidURL{URL: rawURL}
	}
	return url, nil
}

// Subscribe adds recipient to the poll. An unknown poll is loaded first and
// only recorded when its snapshot could be read.
func (s *Subscriptions) Subscribe(ctx context.Context, rawURL string, recipient string) (SubscribeResult, error) {
	url, err := s.Normalize(rawURL)
	if err != nil {
		return SubscribeResult{}, err
	}

	result := SubscribeResult{URL: url}
	if s.addRecipient(url, recipient, &result) {
		return result, nil
	}

	snapshot, err := s.source.Snapshot(ctx, url)
	if err != nil {
		return result, PollUnreachable{URL: url, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// another subscriber may have created the record while we were fetching
	if existing, found := s.polls[url]; found {
		result.AlreadySubscribed = !s.appendRecipientLocked(existing, recipient)
		return result, nil
	}

	sub := entities.NewSubscription(recipient, snapshot, s.now())
	s.polls[url] = &sub
	s.version++
	result.Created = true

	return result, nil
}

func (s *Subscriptions) addRecipient(url string, recipient string, result *SubscribeResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, found := s.polls[url]
	if !found {
		return false
	}
	result.AlreadySubscribed = !s.appendRecipientLocked(existing, recipient)
	return true
}

func (s *Subscriptions) appendRecipientLocked(sub *entities.Subscription, recipient string) bool {
	if sub.HasRecipient(recipient) {
		return false
	}
	sub.NotifyChats = append(sub.NotifyChats, recipient)
	s.version++
	return true
}

// Unsubscribe removes recipient from the poll and drops the record once
// nobody is left.
func (s *Subscriptions) Unsubscribe(rawURL string, recipient string) error {
	url, err := s.Normalize(rawURL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sub, found := s.polls[url]
	if !found || !sub.HasRecipient(recipient) {
		return NotSubscribed{URL: url, Recipient: recipient}
	}

	chats := make([]string, 0, len(sub.NotifyChats)-1)
	for _, chat := range sub.NotifyChats {
		if chat != recipient {
			chats = append(chats, chat)
		}
	}
	sub.NotifyChats = chats

	if len(sub.NotifyChats) == 0 {
		delete(s.polls, url)
	}
	s.version++

	return nil
}

// ForEachDue calls fn for every record not checked for at least staleness.
// fn runs without the store lock held, so it may use the store. Records are
// re-read before each call: changes made earlier in the pass are visible and
// deleted records are skipped.
func (s *Subscriptions) ForEachDue(now time.Time, staleness time.Duration, fn func(url string, sub entities.Subscription)) {
	for _, url := range s.URLs() {
		sub, found := s.Get(url)
		if !found || !sub.IsDue(now, staleness) {
			continue
		}
		fn(url, sub)
	}
}

// Advance records a successful check and returns the previous snapshot along
// with the recipients to notify. ok is false when the poll was removed in the
// meantime.
func (s *Subscriptions) Advance(url string, snapshot *entities.Snapshot, checkedAt time.Time) (previous *entities.Snapshot, recipients []string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, found := s.polls[url]
	if !found {
		return nil, nil, false
	}

	previous = sub.Data
	sub.Data = snapshot
	if checkedAt.After(sub.LastCheck) {
		sub.LastCheck = checkedAt.UTC()
	}
	s.version++

	return previous, append([]string(nil), sub.NotifyChats...), true
}

func (s *Subscriptions) Get(url string) (entities.Subscription, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, found := s.polls[url]
	if !found {
		return entities.Subscription{}, false
	}
	return sub.Clone(), true
}

func (s *Subscriptions) Put(url string, sub entities.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := sub.Clone()
	s.polls[url] = &clone
	s.version++
}

func (s *Subscriptions) Delete(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.polls[url]; !found {
		return false
	}
	delete(s.polls, url)
	s.version++
	return true
}

// URLs returns the subscribed poll URLs in lexical order.
func (s *Subscriptions) URLs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	urls := make([]string, 0, len(s.polls))
	for url := range s.polls {
		urls = append(urls, url)
	}
	sort.Strings(urls)
	return urls
}

// ListFor returns the polls recipient is subscribed to.
func (s *Subscriptions) ListFor(recipient string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var urls []string
	for url, sub := range s.polls {
		if sub.HasRecipient(recipient) {
			urls = append(urls, url)
		}
	}
	sort.Strings(urls)
	return urls
}

func (s *Subscriptions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.polls)
}

// Load replaces the in-memory state with the persisted one. Repeated
// recipients are collapsed and records without recipients are dropped.
func (s *Subscriptions) Load(ctx context.Context) error {
	state, err := s.repository.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load subscriptions: %w", err)
	}

	polls := make(map[string]*entities.Subscription, len(state.Polls))
	for url, sub := range state.Polls {
		if sub == nil {
			continue
		}
		sub.NotifyChats = uniqueRecipients(sub.NotifyChats)
		if len(sub.NotifyChats) == 0 {
			continue
		}
		polls[url] = sub
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.polls = polls
	s.version++
	s.flushed = s.version

	return nil
}

func uniqueRecipients(recipients []string) []string {
	seen := make(map[string]bool, len(recipients))
	unique := make([]string, 0, len(recipients))
	for _, recipient := range recipients {
		if recipient == "" || seen[recipient] {
			continue
		}
		seen[recipient] = true
		unique = append(unique, recipient)
	}
	return unique
}

// Flush saves the state when it changed since the last successful flush. The
// state is copied under the lock and written without it.
func (s *Subscriptions) Flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if s.version == s.flushed {
		s.mu.Unlock()
		return nil
	}
	version := s.version
	state := entities.State{Polls: make(map[string]*entities.Subscription, len(s.polls))}
	for url, sub := range s.polls {
		clone := sub.Clone()
		state.Polls[url] = &clone
	}
	s.mu.Unlock()

	if err := s.repository.Save(ctx, state); err != nil {
		return fmt.Errorf("failed to save subscriptions: %w", err)
	}

	s.mu.Lock()
	s.flushed = version
	s.mu.Unlock()

	return nil
}
