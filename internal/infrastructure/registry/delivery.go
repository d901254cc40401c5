package registry

// Outbound delivery API: the one surface other subsystems use to reach
// connected clients. Every call looks the target up under a read lock and
// writes outside any lock; a dead or absent target is a false return, never
// an error, and never a registry mutation — stale entries are the sweeper's
// problem.

// SendNotification pushes a notification event to the user's notifications
// connection. Reports whether a live connection accepted the event.
func (r *Registry) SendNotification(userID string, notification any) bool {
	r.notifyMu.RLock()
	conn, ok := r.notifications[userID]
	r.notifyMu.RUnlock()

	if !ok || conn.State() != StateOpen {
		return false
	}

	if err := conn.Send(NotificationEvent(notification)); err != nil {
		r.logger.Warnf("Failed to deliver notification to user %s: %v", userID, err)
		return false
	}
	return true
}

// SendUploadProgress pushes a progress event to the connection streaming the
// given upload. Reports whether a live connection accepted the event.
func (r *Registry) SendUploadProgress(userID, uploadID string, progress any) bool {
	r.uploadsMu.RLock()
	var conn Connection
	if userUploads, ok := r.uploads[userID]; ok {
		conn = userUploads[uploadID]
	}
	r.uploadsMu.RUnlock()

	if conn == nil || conn.State() != StateOpen {
		return false
	}

	if err := conn.Send(ProgressUpdateEvent(uploadID, progress)); err != nil {
		r.logger.Warnf("Failed to deliver progress for upload %s to user %s: %v", uploadID, userID, err)
		return false
	}
	return true
}

// BroadcastToAll pushes a broadcast event to every open notifications
// connection; closed entries are skipped silently.
func (r *Registry) BroadcastToAll(channel string, message any) {
	r.notifyMu.RLock()
	conns := make([]Connection, 0, len(r.notifications))
	for _, conn := range r.notifications {
		conns = append(conns, conn)
	}
	r.notifyMu.RUnlock()

	delivered := 0
	for _, conn := range conns {
		if conn.State() != StateOpen {
			continue
		}
		if err := conn.Send(BroadcastEvent(channel, message)); err == nil {
			delivered++
		}
	}

	r.logger.Infof("Broadcast on channel %s delivered to %d of %d connections",
		channel, delivered, len(conns))
}
