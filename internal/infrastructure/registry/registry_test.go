package registry

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photostream-realtime/internal/infrastructure/logger"
)

func newTestRegistry(t *testing.T, sweepInterval time.Duration) *Registry {
	t.Helper()

	reg := New(&mockLogger{}, sweepInterval)
	require.NoError(t, reg.Start(context.Background()))
	t.Cleanup(func() {
		reg.Stop(context.Background())
	})
	return reg
}

func TestRegistry_StartStop(t *testing.T) {
	reg := New(&mockLogger{}, 0)

	ctx := context.Background()

	require.NoError(t, reg.Start(ctx))
	assert.True(t, reg.IsRunning())
	assert.Error(t, reg.Start(ctx), "double start must fail")

	require.NoError(t, reg.Stop(ctx))
	assert.False(t, reg.IsRunning())
	assert.NoError(t, reg.Stop(ctx), "stopping a stopped registry is a no-op")
}

func TestRegistry_NotificationsReplacement(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)

	first := newMockConnection("conn-1", "alice", KindNotifications, "")
	second := newMockConnection("conn-2", "alice", KindNotifications, "")

	reg.RegisterNotifications(first)
	reg.RegisterNotifications(second)

	assert.Equal(t, 1, reg.NotificationsCount(), "at most one notifications entry per user")

	current, ok := reg.NotificationsConnection("alice")
	require.True(t, ok)
	assert.Equal(t, "conn-2", current.ID(), "second registration replaces the first")

	// The superseded connection is orphaned, not closed.
	assert.False(t, first.isClosed())
}

func TestRegistry_StaleUnregisterKeepsReplacement(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)

	first := newMockConnection("conn-1", "alice", KindNotifications, "")
	second := newMockConnection("conn-2", "alice", KindNotifications, "")

	reg.RegisterNotifications(first)
	reg.RegisterNotifications(second)

	// The orphaned connection's close event fires late; it must not evict
	// the live replacement.
	reg.UnregisterNotifications(first)

	current, ok := reg.NotificationsConnection("alice")
	require.True(t, ok)
	assert.Equal(t, "conn-2", current.ID())

	reg.UnregisterNotifications(second)
	_, ok = reg.NotificationsConnection("alice")
	assert.False(t, ok)
}

func TestRegistry_UploadLifecycle(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)

	up1 := newMockConnection("conn-1", "alice", KindUploadProgress, "upload-1")
	up2 := newMockConnection("conn-2", "alice", KindUploadProgress, "upload-2")

	reg.RegisterUpload(up1)
	reg.RegisterUpload(up2)
	assert.Equal(t, 2, reg.UploadsCount(), "one connection per upload, many per user")

	reg.UnregisterUpload(up1)
	assert.Equal(t, 1, reg.UploadsCount())

	_, ok := reg.UploadConnection("alice", "upload-2")
	assert.True(t, ok)

	reg.UnregisterUpload(up2)
	assert.Equal(t, 0, reg.UploadsCount())

	// No dangling empty inner map once the last upload is gone.
	reg.uploadsMu.RLock()
	_, ok = reg.uploads["alice"]
	reg.uploadsMu.RUnlock()
	assert.False(t, ok)
}

func TestRegistry_SweepIdempotent(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)

	alive := newMockConnection("conn-1", "alice", KindNotifications, "")
	dead := newMockConnection("conn-2", "bob", KindNotifications, "")
	dead.setState(StateClosed)

	closingUpload := newMockConnection("conn-3", "bob", KindUploadProgress, "upload-1")
	closingUpload.setState(StateClosing)

	reg.RegisterNotifications(alive)
	reg.RegisterNotifications(dead)
	reg.RegisterUpload(closingUpload)

	reg.Sweep()

	assert.Equal(t, 1, reg.NotificationsCount())
	assert.Equal(t, 0, reg.UploadsCount())

	_, ok := reg.NotificationsConnection("alice")
	assert.True(t, ok)

	reg.uploadsMu.RLock()
	_, ok = reg.uploads["bob"]
	reg.uploadsMu.RUnlock()
	assert.False(t, ok, "pruned inner map must not dangle")

	// A second sweep with no intervening traffic changes nothing.
	reg.Sweep()
	assert.Equal(t, 1, reg.NotificationsCount())
	assert.Equal(t, 0, reg.UploadsCount())
}

func TestRegistry_SweepRunsPeriodically(t *testing.T) {
	reg := newTestRegistry(t, 10*time.Millisecond)

	dead := newMockConnection("conn-1", "alice", KindNotifications, "")
	dead.setState(StateClosed)
	reg.RegisterNotifications(dead)

	assert.Eventually(t, func() bool {
		return reg.NotificationsCount() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestRegistry_SendNotification(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)

	conn := newMockConnection("conn-1", "alice", KindNotifications, "")
	reg.RegisterNotifications(conn)

	delivered := reg.SendNotification("alice", map[string]any{"text": "hi"})
	assert.True(t, delivered)

	events := conn.sentEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventNotification, events[0].Type)
	assert.Equal(t, map[string]any{"text": "hi"}, events[0].Data)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestRegistry_SendNotificationNoConnection(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)

	assert.False(t, reg.SendNotification("nobody", map[string]any{"text": "hi"}))
}

func TestRegistry_SendNotificationDeadConnection(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)

	conn := newMockConnection("conn-1", "alice", KindNotifications, "")
	reg.RegisterNotifications(conn)
	conn.setState(StateClosed)

	assert.False(t, reg.SendNotification("alice", map[string]any{"text": "hi"}))
	assert.Empty(t, conn.sentEvents())

	// Failed sends leave cleanup to the sweeper.
	assert.Equal(t, 1, reg.NotificationsCount())
}

func TestRegistry_SendUploadProgress(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)

	conn := newMockConnection("conn-1", "alice", KindUploadProgress, "upload-1")
	reg.RegisterUpload(conn)

	delivered := reg.SendUploadProgress("alice", "upload-1", map[string]any{"percent": 40})
	assert.True(t, delivered)

	events := conn.sentEvents()
	require.Len(t, events, 1)
	assert.Equal(t, EventProgressUpdate, events[0].Type)
	assert.Equal(t, "upload-1", events[0].UploadID)

	assert.False(t, reg.SendUploadProgress("alice", "upload-2", nil))
	assert.False(t, reg.SendUploadProgress("bob", "upload-1", nil))
}

func TestRegistry_BroadcastSkipsClosed(t *testing.T) {
	reg := newTestRegistry(t, time.Minute)

	alice := newMockConnection("conn-1", "alice", KindNotifications, "")
	bob := newMockConnection("conn-2", "bob", KindNotifications, "")
	carol := newMockConnection("conn-3", "carol", KindNotifications, "")
	carol.setState(StateClosed)

	reg.RegisterNotifications(alice)
	reg.RegisterNotifications(bob)
	reg.RegisterNotifications(carol)

	reg.BroadcastToAll("system", map[string]any{"text": "maintenance"})

	for _, conn := range []*mockConnection{alice, bob} {
		events := conn.sentEvents()
		require.Len(t, events, 1)
		assert.Equal(t, EventBroadcast, events[0].Type)
		assert.Equal(t, "system", events[0].Channel)
	}

	assert.Empty(t, carol.sentEvents())
	// Skipping is silent: the dead entry stays for the sweeper.
	assert.Equal(t, 3, reg.NotificationsCount())
}

func TestRegistry_StopClosesConnections(t *testing.T) {
	reg := New(&mockLogger{}, time.Minute)
	require.NoError(t, reg.Start(context.Background()))

	notif := newMockConnection("conn-1", "alice", KindNotifications, "")
	upload := newMockConnection("conn-2", "alice", KindUploadProgress, "upload-1")
	reg.RegisterNotifications(notif)
	reg.RegisterUpload(upload)

	require.NoError(t, reg.Stop(context.Background()))

	assert.True(t, notif.isClosed())
	assert.True(t, upload.isClosed())
	assert.Equal(t, 0, reg.NotificationsCount())
	assert.Equal(t, 0, reg.UploadsCount())
}

// Mock implementations for testing

type mockConnection struct {
	id       string
	userID   string
	kind     ChannelKind
	uploadID string

	mu     sync.Mutex
	state  State
	closed bool
	sent   []*Event

	ctx    context.Context
	cancel context.CancelFunc
}

func newMockConnection(id, userID string, kind ChannelKind, uploadID string) *mockConnection {
	ctx, cancel := context.WithCancel(context.Background())
	return &mockConnection{
		id:       id,
		userID:   userID,
		kind:     kind,
		uploadID: uploadID,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *mockConnection) ID() string        { return m.id }
func (m *mockConnection) UserID() string    { return m.userID }
func (m *mockConnection) Kind() ChannelKind { return m.kind }
func (m *mockConnection) UploadID() string  { return m.uploadID }

func (m *mockConnection) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockConnection) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

func (m *mockConnection) Send(event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateOpen {
		return ErrConnectionClosed
	}
	m.sent = append(m.sent, event)
	return nil
}

func (m *mockConnection) sentEvents() []*Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*Event(nil), m.sent...)
}

func (m *mockConnection) Close() error {
	m.mu.Lock()
	m.state = StateClosed
	m.closed = true
	m.mu.Unlock()
	m.cancel()
	return nil
}

func (m *mockConnection) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *mockConnection) Context() context.Context { return m.ctx }

type mockLogger struct{}

func (m *mockLogger) Debug(msg string)                              {}
func (m *mockLogger) Debugf(format string, args ...any)             {}
func (m *mockLogger) Info(msg string)                               {}
func (m *mockLogger) Infof(format string, args ...any)              {}
func (m *mockLogger) Warn(msg string)                               {}
func (m *mockLogger) Warnf(format string, args ...any)              {}
func (m *mockLogger) Error(msg string)                              {}
func (m *mockLogger) Errorf(format string, args ...any)             {}
func (m *mockLogger) Fatal(msg string)                              {}
func (m *mockLogger) Fatalf(format string, args ...any)             {}
func (m *mockLogger) WithField(key string, value any) logger.Logger { return m }
func (m *mockLogger) WithFields(fields logger.Fields) logger.Logger { return m }
func (m *mockLogger) WithContext(ctx context.Context) logger.Logger { return m }
func (m *mockLogger) SetLevel(level logger.Level)                   {}
func (m *mockLogger) SetOutput(output io.Writer)                    {}
