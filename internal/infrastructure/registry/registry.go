package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"photostream-realtime/internal/infrastructure/logger"
)

const defaultSweepInterval = 60 * time.Second

// Registry is the concurrency-safe store mapping user identity to live
// connections, one map per channel kind. It owns the liveness sweeper but
// never owns the connections themselves.
type Registry struct {
	notifications map[string]Connection
	notifyMu      sync.RWMutex

	// userID -> uploadID -> connection
	uploads   map[string]map[string]Connection
	uploadsMu sync.RWMutex

	sweepInterval time.Duration

	running   bool
	runningMu sync.RWMutex

	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a stopped registry. A non-positive sweepInterval selects the
// 60s default.
func New(log logger.Logger, sweepInterval time.Duration) *Registry {
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}

	return &Registry{
		notifications: make(map[string]Connection),
		uploads:       make(map[string]map[string]Connection),
		sweepInterval: sweepInterval,
		logger:        log.WithField("component", "registry"),
	}
}

// Start launches the sweeper loop.
func (r *Registry) Start(ctx context.Context) error {
	r.runningMu.Lock()
	defer r.runningMu.Unlock()

	if r.running {
		return fmt.Errorf("registry is already running")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)
	r.running = true

	go r.run()

	r.logger.Info("Registry started")
	return nil
}

// Stop halts the sweeper and closes every held connection.
func (r *Registry) Stop(ctx context.Context) error {
	r.runningMu.Lock()
	defer r.runningMu.Unlock()

	if !r.running {
		return nil
	}

	r.cancel()

	r.notifyMu.Lock()
	for _, conn := range r.notifications {
		if err := conn.Close(); err != nil {
			r.logger.Errorf("Failed to close connection %s: %v", conn.ID(), err)
		}
	}
	r.notifications = make(map[string]Connection)
	r.notifyMu.Unlock()

	r.uploadsMu.Lock()
	for _, userUploads := range r.uploads {
		for _, conn := range userUploads {
			if err := conn.Close(); err != nil {
				r.logger.Errorf("Failed to close connection %s: %v", conn.ID(), err)
			}
		}
	}
	r.uploads = make(map[string]map[string]Connection)
	r.uploadsMu.Unlock()

	r.running = false
	r.logger.Info("Registry stopped")
	return nil
}

func (r *Registry) IsRunning() bool {
	r.runningMu.RLock()
	defer r.runningMu.RUnlock()
	return r.running
}

func (r *Registry) run() {
	ticker := time.NewTicker(r.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep()
		case <-r.ctx.Done():
			r.logger.Info("Registry sweep loop stopped")
			return
		}
	}
}

// RegisterNotifications stores the single notifications connection for a
// user. An existing entry is replaced without being closed; the superseded
// connection stays alive until its own transport ends or the sweeper finds
// it.
func (r *Registry) RegisterNotifications(conn Connection) {
	r.notifyMu.Lock()
	r.notifications[conn.UserID()] = conn
	r.notifyMu.Unlock()

	r.logger.Infof("Notifications connection %s registered for user %s", conn.ID(), conn.UserID())
}

// UnregisterNotifications removes the user's entry, but only while it still
// refers to this connection: a replaced connection closing late must not
// evict its replacement.
func (r *Registry) UnregisterNotifications(conn Connection) {
	r.notifyMu.Lock()
	if current, ok := r.notifications[conn.UserID()]; ok && current.ID() == conn.ID() {
		delete(r.notifications, conn.UserID())
	}
	r.notifyMu.Unlock()

	r.logger.Infof("Notifications connection %s unregistered for user %s", conn.ID(), conn.UserID())
}

// RegisterUpload stores an upload-progress connection under the
// (user, upload) pair, replacing any prior entry for the same pair.
func (r *Registry) RegisterUpload(conn Connection) {
	r.uploadsMu.Lock()
	userUploads, ok := r.uploads[conn.UserID()]
	if !ok {
		userUploads = make(map[string]Connection)
		r.uploads[conn.UserID()] = userUploads
	}
	userUploads[conn.UploadID()] = conn
	r.uploadsMu.Unlock()

	r.logger.Infof(
		"Upload-progress connection %s registered for user %s upload %s",
		conn.ID(), conn.UserID(), conn.UploadID(),
	)
}

// UnregisterUpload removes the (user, upload) entry and drops the user's
// inner map once it is empty.
func (r *Registry) UnregisterUpload(conn Connection) {
	r.uploadsMu.Lock()
	if userUploads, ok := r.uploads[conn.UserID()]; ok {
		if current, ok := userUploads[conn.UploadID()]; ok && current.ID() == conn.ID() {
			delete(userUploads, conn.UploadID())
		}
		if len(userUploads) == 0 {
			delete(r.uploads, conn.UserID())
		}
	}
	r.uploadsMu.Unlock()

	r.logger.Infof(
		"Upload-progress connection %s unregistered for user %s upload %s",
		conn.ID(), conn.UserID(), conn.UploadID(),
	)
}

// Sweep prunes every entry whose transport is no longer open. Best-effort
// and idempotent; the close-event path is the primary cleanup, this catches
// whatever it missed.
func (r *Registry) Sweep() {
	r.notifyMu.Lock()
	for userID, conn := range r.notifications {
		if conn.State() != StateOpen {
			delete(r.notifications, userID)
			r.logger.Infof("Swept dead notifications connection %s for user %s", conn.ID(), userID)
		}
	}
	r.notifyMu.Unlock()

	r.uploadsMu.Lock()
	for userID, userUploads := range r.uploads {
		for uploadID, conn := range userUploads {
			if conn.State() != StateOpen {
				delete(userUploads, uploadID)
				r.logger.Infof("Swept dead upload-progress connection %s for user %s upload %s",
					conn.ID(), userID, uploadID)
			}
		}
		if len(userUploads) == 0 {
			delete(r.uploads, userID)
		}
	}
	r.uploadsMu.Unlock()
}

// NotificationsConnection reports the live notifications connection for a
// user, if any.
func (r *Registry) NotificationsConnection(userID string) (Connection, bool) {
	r.notifyMu.RLock()
	defer r.notifyMu.RUnlock()

	conn, ok := r.notifications[userID]
	return conn, ok
}

// UploadConnection reports the live connection for a (user, upload) pair, if
// any.
func (r *Registry) UploadConnection(userID, uploadID string) (Connection, bool) {
	r.uploadsMu.RLock()
	defer r.uploadsMu.RUnlock()

	userUploads, ok := r.uploads[userID]
	if !ok {
		return nil, false
	}
	conn, ok := userUploads[uploadID]
	return conn, ok
}

func (r *Registry) NotificationsCount() int {
	r.notifyMu.RLock()
	defer r.notifyMu.RUnlock()
	return len(r.notifications)
}

func (r *Registry) UploadsCount() int {
	r.uploadsMu.RLock()
	defer r.uploadsMu.RUnlock()

	count := 0
	for _, userUploads := range r.uploads {
		count += len(userUploads)
	}
	return count
}
