package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/3tcapital/facturador/internal/core/ticket"
)

// TicketCache keeps access tickets in process memory, keyed by
// environment and service. Entries expire with the ticket itself.
type TicketCache struct {
	store *gocache.Cache
}

// NewTicketCache creates a cache that sweeps expired tickets every
// cleanupInterval.
func NewTicketCache(cleanupInterval time.Duration) *TicketCache {
	if cleanupInterval <= 0 {
		cleanupInterval = 10 * time.Minute
	}
	return &TicketCache{store: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// Get returns the cached ticket if it has not expired.
func (c *TicketCache) Get(environment, service string) (ticket.AccessTicket, bool) {
	v, ok := c.store.Get(ticket.Key(environment, service))
	if !ok {
		return ticket.AccessTicket{}, false
	}
	t, ok := v.(ticket.AccessTicket)
	return t, ok
}

// Set stores t until its expiration. Already expired tickets are dropped.
func (c *TicketCache) Set(t ticket.AccessTicket) {
	ttl := time.Until(t.ExpiresAt)
	if ttl <= 0 {
		c.store.Delete(t.Key())
		return
	}
	c.store.Set(t.Key(), t, ttl)
}

// Clear removes the ticket for environment and service.
func (c *TicketCache) Clear(environment, service string) {
	c.store.Delete(ticket.Key(environment, service))
}
