package app

import (
	"fmt"

	"bookswap/internal/store"
	"bookswap/pkg/domain"
)

// Notifications returns the user's mailbox, newest first, and marks every
// entry read in the same unit of work. The returned entries carry the
// read flags as they were before the view, so callers can still highlight
// what was new.
func (a *App) Notifications(user domain.User) ([]domain.Notification, error) {
	var items []domain.Notification
	err := a.store.Transact(func(tx store.Store) error {
		var err error
		items, err = tx.ListNotificationsFor(user.ID)
		if err != nil {
			return fmt.Errorf("list notifications: %w", err)
		}
		return tx.MarkAllRead(user.ID)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

// UnreadCount returns the badge count of unread notifications.
func (a *App) UnreadCount(user domain.User) (int, error) {
	count, err := a.store.CountUnread(user.ID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}
