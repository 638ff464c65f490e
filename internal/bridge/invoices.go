package bridge

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/exp/slog"

	"github.com/MJE43/stargift-miniapp/internal/lib/logger/sl"
	"github.com/MJE43/stargift-miniapp/internal/spin"
)

var ErrUnknownInvoice = errors.New("bridge: unknown invoice")

// InvoiceOpen is the payload of an invoice_open event.
type InvoiceOpen struct {
	ID   uuid.UUID `json:"id"`
	Link string    `json:"link"`
}

// InvoiceDesk hands invoices to the renderer and routes the status it
// posts back to the waiting callback. Each invoice resolves once.
type InvoiceDesk struct {
	hub *Hub
	log *slog.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]func(spin.InvoiceStatus)
}

func NewInvoiceDesk(hub *Hub, log *slog.Logger) *InvoiceDesk {
	return &InvoiceDesk{
		hub:     hub,
		log:     sl.OrDiscard(log).With(slog.String("component", "invoices")),
		pending: make(map[uuid.UUID]func(spin.InvoiceStatus)),
	}
}

// OpenInvoice registers done and emits invoice_open.
func (d *InvoiceDesk) OpenInvoice(link string, done func(spin.InvoiceStatus)) {
	id := uuid.New()
	d.mu.Lock()
	d.pending[id] = done
	d.mu.Unlock()

	d.log.Debug("invoice opened", slog.String("id", id.String()))
	d.hub.Broadcast(Event{Type: EventInvoiceOpen, Data: InvoiceOpen{ID: id, Link: link}})
}

// Resolve delivers status for invoice id.
func (d *InvoiceDesk) Resolve(id uuid.UUID, status spin.InvoiceStatus) error {
	d.mu.Lock()
	done, ok := d.pending[id]
	delete(d.pending, id)
	d.mu.Unlock()
	if !ok {
		return ErrUnknownInvoice
	}
	done(status)
	return nil
}

// Pending reports how many invoices await a status.
func (d *InvoiceDesk) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
