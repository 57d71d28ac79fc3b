package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"portfolioalerts/internal/database"
	"portfolioalerts/internal/models"
)

// memStore is an in-memory Store with the same error contract as
// database.Store.
type memStore struct {
	mu            sync.Mutex
	nextID        int64
	alerts        map[int64]*models.Alert
	notifications map[int64]*models.Notification
	assets        map[int64]*models.Asset
}

func newMemStore() *memStore {
	return &memStore{
		alerts:        make(map[int64]*models.Alert),
		notifications: make(map[int64]*models.Notification),
		assets:        make(map[int64]*models.Asset),
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) CreateAlert(_ context.Context, a *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.alerts {
		if existing.UserID == a.UserID && existing.Status == models.StatusActive &&
			strings.EqualFold(existing.Cryptocurrency, a.Cryptocurrency) && existing.AlertType == a.AlertType {
			return database.ErrAlreadyExists
		}
	}
	now := time.Now().UTC()
	a.ID = m.id()
	a.CreatedAt = &now
	a.Status = models.StatusActive
	stored := *a
	m.alerts[a.ID] = &stored
	return nil
}

func (m *memStore) GetAlert(_ context.Context, userID string, id int64) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok || a.UserID != userID {
		return nil, database.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) ListActiveAlerts(_ context.Context, userID string) ([]*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Alert
	for _, a := range m.alerts {
		if a.UserID == userID && a.Status == models.StatusActive {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) UpdateAlert(_ context.Context, a *models.Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.alerts[a.ID]
	if !ok || existing.UserID != a.UserID {
		return database.ErrNotFound
	}
	cp := *a
	m.alerts[a.ID] = &cp
	return nil
}

func (m *memStore) DeleteAlert(_ context.Context, userID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok || a.UserID != userID {
		return database.ErrNotFound
	}
	delete(m.alerts, id)
	for nid, n := range m.notifications {
		if n.AlertID == id {
			delete(m.notifications, nid)
		}
	}
	return nil
}

func (m *memStore) addNotification(alertID int64, text string, read bool) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	n := &models.Notification{ID: m.id(), AlertID: alertID, NotificationText: text, IsRead: read, CreatedAt: &now}
	m.notifications[n.ID] = n
	return n.ID
}

func (m *memStore) ownedNotification(userID string, n *models.Notification) bool {
	a, ok := m.alerts[n.AlertID]
	return ok && a.UserID == userID
}

func (m *memStore) ListNotifications(_ context.Context, userID string) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Notification
	for _, n := range m.notifications {
		if m.ownedNotification(userID, n) {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) UnreadCount(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.notifications {
		if !n.IsRead && m.ownedNotification(userID, n) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) MarkNotificationRead(_ context.Context, userID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || !m.ownedNotification(userID, n) {
		return database.ErrNotFound
	}
	n.IsRead = true
	return nil
}

func (m *memStore) AddAsset(_ context.Context, asset *models.Asset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assets {
		if a.UserID == asset.UserID && (a.Abbreviation == asset.Abbreviation || a.Name == asset.Name) {
			return database.ErrAlreadyExists
		}
	}
	asset.ID = m.id()
	cp := *asset
	m.assets[asset.ID] = &cp
	return nil
}

func (m *memStore) UpdateAsset(_ context.Context, userID string, id int64, name string, amount float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok || a.UserID != userID {
		return database.ErrNotFound
	}
	if name != "" {
		a.Name = name
	}
	a.Amount = amount
	return nil
}

func (m *memStore) DeleteAsset(_ context.Context, userID string, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.assets[id]
	if !ok || a.UserID != userID {
		return database.ErrNotFound
	}
	delete(m.assets, id)
	for _, alert := range m.alerts {
		if alert.UserID == userID && strings.EqualFold(alert.Cryptocurrency, a.Abbreviation) {
			alert.Status = models.StatusInactive
		}
	}
	return nil
}

func (m *memStore) SearchAssets(_ context.Context, userID, query string) ([]models.AssetMatch, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AssetMatch
	for _, a := range m.assets {
		if a.UserID == userID && strings.Contains(a.Name, strings.ToLower(query)) {
			out = append(out, models.AssetMatch{ID: a.ID, AssetName: a.Name, Amount: a.Amount})
		}
	}
	return out, nil
}

func (m *memStore) OwnedCoins(_ context.Context, userID string) ([]models.OwnedCoin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.OwnedCoin
	for _, a := range m.assets {
		if a.UserID == userID {
			out = append(out, models.OwnedCoin{ID: a.ID, Name: a.Name, Abbreviation: a.Abbreviation, Amount: a.Amount})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// mapCache is a ResponseCache that records invalidations.
type mapCache struct {
	mu          sync.Mutex
	values      map[string]string
	hits        int
	invalidated []string
}

func newMapCache() *mapCache {
	return &mapCache{values: make(map[string]string)}
}

func (c *mapCache) Get(_ context.Context, key, _ string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.values[key]
	if ok {
		c.hits++
	}
	return v, nil
}

func (c *mapCache) Set(_ context.Context, key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
	return nil
}

func (c *mapCache) InvalidateByPrefix(_ context.Context, prefix, _ string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, prefix)
	for k := range c.values {
		if strings.HasPrefix(k, prefix) {
			delete(c.values, k)
		}
	}
}
