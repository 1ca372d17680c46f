package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/3tcapital/facturador/internal/core/ticket"
)

func newTicket(service string, ttl time.Duration) ticket.AccessTicket {
	now := time.Now()
	return ticket.AccessTicket{
		Environment: "homologacion",
		Service:     service,
		Token:       "token-" + service,
		Sign:        "sign-" + service,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ttl),
	}
}

func TestTicketCache_Get(t *testing.T) {
	tests := []struct {
		name       string
		setupCache func() *TicketCache
		expectedOk bool
	}{
		{
			name:       "empty cache",
			setupCache: func() *TicketCache { return NewTicketCache(time.Minute) },
			expectedOk: false,
		},
		{
			name: "valid ticket",
			setupCache: func() *TicketCache {
				c := NewTicketCache(time.Minute)
				c.Set(newTicket("wsfe", time.Hour))
				return c
			},
			expectedOk: true,
		},
		{
			name: "expired ticket is not stored",
			setupCache: func() *TicketCache {
				c := NewTicketCache(time.Minute)
				c.Set(newTicket("wsfe", -time.Hour))
				return c
			},
			expectedOk: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.setupCache()
			got, ok := c.Get("homologacion", "wsfe")
			if ok != tt.expectedOk {
				t.Fatalf("expected ok=%v, got %v", tt.expectedOk, ok)
			}
			if ok && got.Token != "token-wsfe" {
				t.Errorf("expected token-wsfe, got %s", got.Token)
			}
		})
	}
}

func TestTicketCache_KeyedByService(t *testing.T) {
	c := NewTicketCache(time.Minute)
	c.Set(newTicket("wsfe", time.Hour))

	if _, ok := c.Get("homologacion", "wsmtxca"); ok {
		t.Error("tickets of other services must not be returned")
	}
	if _, ok := c.Get("produccion", "wsfe"); ok {
		t.Error("tickets of other environments must not be returned")
	}
}

func TestTicketCache_Clear(t *testing.T) {
	c := NewTicketCache(time.Minute)
	c.Set(newTicket("wsfe", time.Hour))
	c.Clear("homologacion", "wsfe")

	if _, ok := c.Get("homologacion", "wsfe"); ok {
		t.Error("expected ticket to be cleared")
	}
}

func TestTicketCache_ShortLivedEntryExpires(t *testing.T) {
	c := NewTicketCache(time.Minute)
	c.Set(newTicket("wsfe", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)

	if _, ok := c.Get("homologacion", "wsfe"); ok {
		t.Error("expected ticket to expire with its lifetime")
	}
}

func TestTicketCache_ConcurrentAccess(t *testing.T) {
	c := NewTicketCache(time.Minute)
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Set(newTicket("wsfe", time.Hour))
		}()
		go func() {
			defer wg.Done()
			c.Get("homologacion", "wsfe")
		}()
	}
	wg.Wait()

	if _, ok := c.Get("homologacion", "wsfe"); !ok {
		t.Error("expected ticket after concurrent writes")
	}
}
