package spin

import (
	"context"
	"strings"

	"golang.org/x/exp/slog"

	"github.com/MJE43/stargift-miniapp/internal/lib/logger/sl"
	"github.com/MJE43/stargift-miniapp/internal/presenter"
)

// Checkout requests an invoice for the current tier and opens it. A paid
// invoice starts a paid spin; a failed one raises a notice; cancelled and
// pending are silent. The returned error, if any, carries a user message
// (see UserMessage).
func (c *Controller) Checkout(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.busyLocked():
		c.mu.Unlock()
		return ErrBusy
	case c.invoices == nil || c.opener == nil:
		c.mu.Unlock()
		return ErrInvoiceUnsupported
	}
	c.processing = true
	c.checkoutGen++
	gen := c.checkoutGen
	amount := int(c.tier)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	log := c.log.With(slog.Int("amount", amount))
	link, err := c.invoices.CreateInvoice(ctx, amount)
	if err != nil {
		log.Error("failed to create invoice", sl.Err(err))
		c.finishCheckout(gen)
		return &NoticeError{Message: MsgInvoiceFailed, Err: err}
	}
	link = strings.TrimSpace(link)
	if link == "" {
		log.Error("invoice response has no link")
		c.finishCheckout(gen)
		return &NoticeError{Message: MsgInvoiceNoLink}
	}

	log.Debug("opening invoice")
	c.opener.OpenInvoice(link, func(status InvoiceStatus) {
		c.onInvoiceStatus(gen, status)
	})
	return nil
}

func (c *Controller) finishCheckout(gen uint64) {
	c.mu.Lock()
	if c.closed || gen != c.checkoutGen {
		c.mu.Unlock()
		return
	}
	c.processing = false
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
}

func (c *Controller) onInvoiceStatus(gen uint64, status InvoiceStatus) {
	c.mu.Lock()
	if c.closed || gen != c.checkoutGen || !c.processing {
		c.mu.Unlock()
		c.log.Debug("stale invoice status ignored", slog.String("status", string(status)))
		return
	}
	c.processing = false
	// Superseded outcomes for this checkout are ignored from here on.
	c.checkoutGen++
	if status == InvoicePaid && !c.startSpinLocked(presenter.ModePaid) {
		c.log.Error("paid invoice could not start a spin", slog.Int("tier", int(c.tier)))
	}
	notify := c.notify
	snap := c.snapshotLocked()
	c.mu.Unlock()

	c.log.Info("invoice closed", slog.String("status", string(status)))
	if status == InvoiceFailed && notify != nil {
		notify(MsgPaymentFailed)
	}
	c.publish(snap)
}
