// Package notifycenter tracks the unread badge and the notification list
// shown in the bell modal.
package notifycenter

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"portfolioalerts/internal/models"
	"portfolioalerts/internal/seq"
)

const (
	UnknownDate = "Unknown date"
	TimeLayout  = "Jan 2, 2006, 3:04:05 PM"
)

type API interface {
	UnreadCount(ctx context.Context) (int, error)
	Notifications(ctx context.Context) ([]models.Notification, error)
	MarkRead(ctx context.Context, id int64) error
}

// Streamer delivers push events until ctx is done.
type Streamer interface {
	Listen(ctx context.Context, onEvent func(models.NotificationEvent)) error
}

// Badge is the unread indicator on the bell.
type Badge struct {
	Visible bool
	Text    string
}

// BadgeFor shows the count when there is anything unread and hides the
// badge otherwise.
func BadgeFor(count int) Badge {
	if count <= 0 {
		return Badge{}
	}
	return Badge{Visible: true, Text: strconv.Itoa(count)}
}

// Item is one notification as shown in the modal.
type Item struct {
	ID           int64
	AlertID      int64
	Text         string
	CurrentPrice string
	Time         string
	Unread       bool
}

// Target is what a click inside the open modal landed on.
type Target int

const (
	TargetBackdrop Target = iota
	TargetContent
	TargetItem
)

type Center struct {
	api   API
	log   *zap.Logger
	loc   *time.Location
	count seq.Guard

	mu    sync.Mutex
	badge Badge
	items []Item
	open  bool
}

func New(api API, log *zap.Logger, loc *time.Location) *Center {
	if log == nil {
		log = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Center{api: api, log: log, loc: loc}
}

// RefreshCount fetches the unread count and updates the badge. A response
// overtaken by a newer refresh is dropped.
func (c *Center) RefreshCount(ctx context.Context) (Badge, error) {
	ticket := c.count.Next()
	n, err := c.api.UnreadCount(ctx)
	if err != nil {
		c.log.Error("Error fetching unread count", zap.Error(err))
		return c.Badge(), errors.Wrap(err, "fetch unread count")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.count.Current(ticket) {
		c.badge = BadgeFor(n)
	}
	return c.badge, nil
}

func (c *Center) Badge() Badge {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.badge
}

// StartPolling refreshes the badge now and then every interval.
func (c *Center) StartPolling(ctx context.Context, interval time.Duration) *Poller {
	return StartPoller(ctx, interval, func(ctx context.Context) {
		_, _ = c.RefreshCount(ctx)
	})
}

// Watch refreshes the badge, and the list when the modal is open, on every
// pushed event. It returns when ctx is done.
func (c *Center) Watch(ctx context.Context, stream Streamer) error {
	return stream.Listen(ctx, func(ev models.NotificationEvent) {
		c.log.Debug("Notification event received",
			zap.Int64("alert_id", ev.AlertID),
			zap.Int64("notification_id", ev.NotificationID))
		_, _ = c.RefreshCount(ctx)
		if c.IsOpen() {
			_, _ = c.load(ctx)
		}
	})
}

// Open loads the notifications and shows the modal.
func (c *Center) Open(ctx context.Context) ([]Item, error) {
	items, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.open = true
	c.mu.Unlock()
	return items, nil
}

func (c *Center) load(ctx context.Context) ([]Item, error) {
	list, err := c.api.Notifications(ctx)
	if err != nil {
		c.log.Error("Error fetching notifications", zap.Error(err))
		return nil, errors.Wrap(err, "fetch notifications")
	}

	items := make([]Item, 0, len(list))
	for _, n := range list {
		items = append(items, c.newItem(n))
	}

	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return append([]Item(nil), items...), nil
}

func (c *Center) newItem(n models.Notification) Item {
	it := Item{
		ID:           n.ID,
		AlertID:      n.AlertID,
		Text:         n.NotificationText,
		CurrentPrice: decimal.NewFromFloat(n.CurrentPrice).String(),
		Time:         UnknownDate,
		Unread:       !n.IsRead,
	}
	if n.CreatedAt != nil && !n.CreatedAt.IsZero() {
		it.Time = n.CreatedAt.In(c.loc).Format(TimeLayout)
	}
	return it
}

func (c *Center) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Item(nil), c.items...)
}

func (c *Center) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// MarkRead marks a notification read on the server, clears its unread
// marker and refetches the count. Marking an already read item again is
// harmless.
func (c *Center) MarkRead(ctx context.Context, id int64) error {
	if err := c.api.MarkRead(ctx, id); err != nil {
		c.log.Error("Error marking notification as read", zap.Int64("notification_id", id), zap.Error(err))
		return errors.Wrapf(err, "mark notification %d read", id)
	}

	c.mu.Lock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Unread = false
		}
	}
	c.mu.Unlock()

	_, err := c.RefreshCount(ctx)
	return err
}

func (c *Center) Close() {
	c.mu.Lock()
	c.open = false
	c.mu.Unlock()
}

// Click closes the modal when the click landed on the backdrop itself and
// reports whether it did.
func (c *Center) Click(target Target) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if target != TargetBackdrop || !c.open {
		return false
	}
	c.open = false
	return true
}
