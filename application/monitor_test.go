package application

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CedricFinance/pollwatch/domain/entities"
	"github.com/CedricFinance/pollwatch/domain/services"
	"github.com/CedricFinance/pollwatch/infrastructure/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

const pollURL = "https://doodle.com/poll/abc123"

type stubSource struct {
	mu        sync.Mutex
	snapshots map[string]*entities.Snapshot
	err       error
	block     chan struct{}
	calls     atomic.Int32
}

func newStubSource() *stubSource {
	return &stubSource{snapshots: map[string]*entities.Snapshot{}}
}

func (s *stubSource) set(url string, snapshot *entities.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[url] = snapshot
}

func (s *stubSource) Snapshot(ctx context.Context, url string) (*entities.Snapshot, error) {
	s.calls.Add(1)
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	snapshot, found := s.snapshots[url]
	if !found {
		return nil, services.FetchFailure{URL: url, Err: errors.New("unexpected response status: 404")}
	}
	return snapshot, nil
}

type sentMessage struct {
	Recipient string
	Text      string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMessage
	fail map[string]bool
}

func (n *recordingNotifier) Notify(ctx context.Context, recipient string, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail[recipient] {
		return errors.New("channel_not_found")
	}
	n.sent = append(n.sent, sentMessage{Recipient: recipient, Text: text})
	return nil
}

func (n *recordingNotifier) messages() []sentMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentMessage(nil), n.sent...)
}

type monitorFixture struct {
	store    *services.Subscriptions
	source   *stubSource
	notifier *recordingNotifier
	monitor  *Monitor
	now      time.Time
}

func newMonitorFixture(t *testing.T) *monitorFixture {
	t.Helper()

	f := &monitorFixture{
		source:   newStubSource(),
		notifier: &recordingNotifier{},
		now:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.store = services.NewSubscriptions(repository.NewMemory(), f.source, entities.NewPollURLMatcher(""), services.WithClock(clock))
	f.monitor = NewMonitor(f.store, f.source, f.notifier, zaptest.NewLogger(t), MonitorConfig{
		Staleness: 5 * time.Minute,
		Workers:   2,
		Now:       clock,
	})
	t.Cleanup(func() { _ = f.monitor.Stop(context.Background()) })

	return f
}

func dinner(participants ...entities.Participant) *entities.Snapshot {
	return &entities.Snapshot{
		Title:        "Team dinner",
		OptionsText:  []string{"Mon", "Tue"},
		Participants: participants,
	}
}

func TestMonitorCheck_FreshPollIsTrackedWithoutNotification(t *testing.T) {
	f := newMonitorFixture(t)
	f.store.Put(pollURL, entities.Subscription{NotifyChats: []string{"C1"}, LastCheck: f.now.Add(-time.Hour)})
	snapshot := dinner(entities.Participant{Id: "1", Name: "Alice", Preferences: "yn"})
	f.source.set(pollURL, snapshot)

	require.NoError(t, f.monitor.Check(context.Background(), pollURL))

	sub, _ := f.store.Get(pollURL)
	assert.Same(t, snapshot, sub.Data)
	assert.Equal(t, f.now, sub.LastCheck)
	assert.Empty(t, f.notifier.messages())
}

func TestMonitorCheck_NotifiesEveryRecipientOnChange(t *testing.T) {
	f := newMonitorFixture(t)
	previous := dinner(entities.Participant{Id: "1", Name: "Alice", Preferences: "yn"})
	current := dinner(
		entities.Participant{Id: "1", Name: "Alice", Preferences: "yy"},
		entities.Participant{Id: "2", Name: "Bob", Preferences: "n"},
	)
	f.store.Put(pollURL, entities.Subscription{NotifyChats: []string{"C1", "C2"}, LastCheck: f.now.Add(-time.Hour), Data: previous})
	f.source.set(pollURL, current)

	require.NoError(t, f.monitor.Check(context.Background(), pollURL))

	want := FormatUpdate(pollURL, *current, entities.DiffSnapshots(*previous, *current))
	assert.Equal(t, []sentMessage{{"C1", want}, {"C2", want}}, f.notifier.messages())
	assert.Contains(t, want, "  Tue: *Yes*")
	sub, _ := f.store.Get(pollURL)
	assert.Same(t, current, sub.Data)
}

func TestMonitorCheck_NoChangeNoNotification(t *testing.T) {
	f := newMonitorFixture(t)
	snapshot := dinner(entities.Participant{Id: "1", Name: "Alice", Preferences: "yn"})
	f.store.Put(pollURL, entities.Subscription{NotifyChats: []string{"C1"}, LastCheck: f.now.Add(-time.Hour), Data: snapshot})
	f.source.set(pollURL, dinner(entities.Participant{Id: "1", Name: "Alice", Preferences: "yn"}))

	require.NoError(t, f.monitor.Check(context.Background(), pollURL))

	assert.Empty(t, f.notifier.messages())
	sub, _ := f.store.Get(pollURL)
	assert.Equal(t, f.now, sub.LastCheck)
}

func TestMonitorCheck_FailureKeepsRecordDue(t *testing.T) {
	f := newMonitorFixture(t)
	snapshot := dinner()
	lastCheck := f.now.Add(-6 * time.Minute)
	f.store.Put(pollURL, entities.Subscription{NotifyChats: []string{"C1"}, LastCheck: lastCheck, Data: snapshot})
	f.source.err = services.ParseFailure{URL: pollURL, Err: errors.New("document does not contain poll data")}

	err := f.monitor.Check(context.Background(), pollURL)

	var parseFailure services.ParseFailure
	require.True(t, errors.As(err, &parseFailure))
	sub, _ := f.store.Get(pollURL)
	assert.Equal(t, lastCheck, sub.LastCheck)
	assert.Same(t, snapshot, sub.Data)
	assert.True(t, sub.IsDue(f.now, 5*time.Minute))
}

func TestMonitorCheck_NotificationFailureDoesNotStopOthers(t *testing.T) {
	f := newMonitorFixture(t)
	f.notifier.fail = map[string]bool{"C1": true}
	f.store.Put(pollURL, entities.Subscription{NotifyChats: []string{"C1", "C2"}, LastCheck: f.now.Add(-time.Hour), Data: dinner()})
	f.source.set(pollURL, dinner(entities.Participant{Id: "2", Name: "Bob", Preferences: "n"}))

	require.NoError(t, f.monitor.Check(context.Background(), pollURL))

	messages := f.notifier.messages()
	require.Len(t, messages, 1)
	assert.Equal(t, "C2", messages[0].Recipient)
}

func TestMonitorCheck_UnsubscribedDuringCheck(t *testing.T) {
	f := newMonitorFixture(t)
	f.source.set(pollURL, dinner())

	require.NoError(t, f.monitor.Check(context.Background(), pollURL))

	assert.Equal(t, 0, f.store.Len())
}

func TestMonitorScan_OnlyDuePolls(t *testing.T) {
	f := newMonitorFixture(t)
	f.store.Put("https://doodle.com/poll/stale", entities.Subscription{NotifyChats: []string{"C1"}, LastCheck: f.now.Add(-6 * time.Minute)})
	f.store.Put("https://doodle.com/poll/fresh", entities.Subscription{NotifyChats: []string{"C1"}, LastCheck: f.now.Add(-1 * time.Minute)})
	f.source.set("https://doodle.com/poll/stale", dinner())
	f.source.set("https://doodle.com/poll/fresh", dinner())

	assert.Equal(t, 1, f.monitor.Scan(context.Background()))

	assert.Eventually(t, func() bool {
		sub, _ := f.store.Get("https://doodle.com/poll/stale")
		return sub.Data != nil
	}, time.Second, 5*time.Millisecond)
	sub, _ := f.store.Get("https://doodle.com/poll/fresh")
	assert.Nil(t, sub.Data)
}

func TestMonitorScan_SkipsPollsInFlight(t *testing.T) {
	f := newMonitorFixture(t)
	f.source.block = make(chan struct{})
	f.store.Put(pollURL, entities.Subscription{NotifyChats: []string{"C1"}, LastCheck: f.now.Add(-time.Hour)})
	f.source.set(pollURL, dinner())

	assert.Equal(t, 1, f.monitor.Scan(context.Background()))
	assert.True(t, f.monitor.InFlight(pollURL))
	assert.Equal(t, 0, f.monitor.Scan(context.Background()))

	close(f.source.block)

	assert.Eventually(t, func() bool { return !f.monitor.InFlight(pollURL) }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), f.source.calls.Load())
	// the successful check advanced lastCheck, nothing is due anymore
	assert.Equal(t, 0, f.monitor.Scan(context.Background()))
}

func TestMonitorScan_FailedCheckIsRetried(t *testing.T) {
	f := newMonitorFixture(t)
	f.store.Put(pollURL, entities.Subscription{NotifyChats: []string{"C1"}, LastCheck: f.now.Add(-time.Hour)})

	assert.Equal(t, 1, f.monitor.Scan(context.Background()))
	assert.Eventually(t, func() bool { return !f.monitor.InFlight(pollURL) }, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, f.monitor.Scan(context.Background()))
}

func TestMonitorScan_ChangeLogCarriesScanID(t *testing.T) {
	f := newMonitorFixture(t)
	core, logs := observer.New(zap.InfoLevel)
	monitor := NewMonitor(f.store, f.source, f.notifier, zap.New(core), MonitorConfig{Staleness: 5 * time.Minute, Workers: 1, Now: f.monitor.config.Now})
	t.Cleanup(func() { _ = monitor.Stop(context.Background()) })

	f.store.Put(pollURL, entities.Subscription{NotifyChats: []string{"C1"}, LastCheck: f.now.Add(-time.Hour), Data: dinner()})
	f.source.set(pollURL, dinner(entities.Participant{Id: "2", Name: "Bob", Preferences: "n"}))

	require.Equal(t, 1, monitor.Scan(context.Background()))

	require.Eventually(t, func() bool {
		return logs.FilterMessage("poll changed").Len() == 1
	}, time.Second, 5*time.Millisecond)
	fields := logs.FilterMessage("poll changed").All()[0].ContextMap()
	assert.Equal(t, pollURL, fields["url"])
	assert.NotEmpty(t, fields["scan_id"])
}

func TestMonitor_StartAndStop(t *testing.T) {
	f := newMonitorFixture(t)
	f.monitor.config.ScanInterval = time.Second
	f.monitor.config.PersistInterval = time.Second
	f.store.Put(pollURL, entities.Subscription{NotifyChats: []string{"C1"}, LastCheck: f.now.Add(-time.Hour)})
	f.source.set(pollURL, dinner())

	require.NoError(t, f.monitor.Start(context.Background()))

	assert.Eventually(t, func() bool {
		sub, _ := f.store.Get(pollURL)
		return sub.Data != nil
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, f.monitor.Stop(context.Background()))
}
