package notify

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/Lllllllleong/opsportal/internal/mirror"
	"github.com/Lllllllleong/opsportal/internal/models"
)

const (
	// FeedKey is the mirror key holding the notification list.
	FeedKey = "kimberry-notifications"
	// MaxNotifications caps the feed; the oldest entries fall off.
	MaxNotifications = 50
)

// Feed is the newest-first activity list kept in the local mirror.
type Feed struct {
	mu      sync.Mutex
	mirror  mirror.Mirror
	emitter *Emitter
	now     func() time.Time
}

// NewFeed returns a feed persisted in m that announces changes on emitter.
func NewFeed(m mirror.Mirror, emitter *Emitter) *Feed {
	return &Feed{mirror: m, emitter: emitter, now: time.Now}
}

// List returns the feed, newest first. An unreadable feed is reported as empty.
func (f *Feed) List(ctx context.Context) ([]models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load(ctx)
}

func (f *Feed) load(ctx context.Context) ([]models.Notification, error) {
	var list []models.Notification
	if _, err := mirror.GetJSON(ctx, f.mirror, FeedKey, &list); err != nil {
		slog.Warn("Notification feed unreadable, starting over", "error", err)
		return nil, nil
	}
	return list, nil
}

// Add prepends a new unread notification.
func (f *Feed) Add(ctx context.Context, userEmail, action, details string) (models.Notification, error) {
	n, err := f.add(ctx, userEmail, action, details)
	if err != nil {
		return models.Notification{}, err
	}
	f.emitter.Emit(EventNotificationsUpdated)
	return n, nil
}

func (f *Feed) add(ctx context.Context, userEmail, action, details string) (models.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	list, err := f.load(ctx)
	if err != nil {
		return models.Notification{}, err
	}
	if userEmail == "" {
		userEmail = "Unknown User"
	}
	now := f.now()
	n := models.Notification{
		ID:        strconv.FormatInt(now.UnixMilli(), 10),
		UserEmail: userEmail,
		Action:    action,
		Details:   details,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}

	list = append([]models.Notification{n}, list...)
	if len(list) > MaxNotifications {
		list = list[:MaxNotifications]
	}
	if err := mirror.SetJSON(ctx, f.mirror, FeedKey, list); err != nil {
		return models.Notification{}, err
	}
	return n, nil
}

// MarkAllRead flags every notification as read. Nothing is written when all are read.
func (f *Feed) MarkAllRead(ctx context.Context) error {
	changed, err := f.markAllRead(ctx)
	if err != nil || !changed {
		return err
	}
	f.emitter.Emit(EventNotificationsUpdated)
	return nil
}

func (f *Feed) markAllRead(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	list, err := f.load(ctx)
	if err != nil {
		return false, err
	}
	changed := false
	for i := range list {
		if !list[i].Read {
			list[i].Read = true
			changed = true
		}
	}
	if !changed {
		return false, nil
	}
	if err := mirror.SetJSON(ctx, f.mirror, FeedKey, list); err != nil {
		return false, err
	}
	return true, nil
}

// UnreadCount reports how many notifications have not been read.
func (f *Feed) UnreadCount(ctx context.Context) (int, error) {
	list, err := f.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, item := range list {
		if !item.Read {
			n++
		}
	}
	return n, nil
}
