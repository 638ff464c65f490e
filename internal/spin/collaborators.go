package spin

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MJE43/stargift-miniapp/internal/roulette"
)

// Surface is the rendering side of the strip. Calls arrive while the
// controller holds its lock, so implementations must not call back into
// the controller synchronously.
type Surface interface {
	// Jump moves the strip to offset without a transition.
	Jump(offset float64)
	// Animate transitions the strip to offset over d along curve.
	Animate(offset float64, d time.Duration, curve roulette.CubicBezier)
	// ContainerWidth is the measured viewport width, 0 if not laid out yet.
	ContainerWidth() float64
}

// Haptics is an optional vibration capability.
type Haptics interface {
	Vibrate(pattern []time.Duration) error
}

// RevealPattern is played when a prize is revealed.
var RevealPattern = []time.Duration{50 * time.Millisecond, 30 * time.Millisecond, 100 * time.Millisecond}

// InvoiceStatus is the terminal state reported by the invoice UI.
type InvoiceStatus string

const (
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceCancelled InvoiceStatus = "cancelled"
	InvoiceFailed    InvoiceStatus = "failed"
	InvoicePending   InvoiceStatus = "pending"
)

// ParseInvoiceStatus validates a status string from the host.
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	switch st := InvoiceStatus(s); st {
	case InvoicePaid, InvoiceCancelled, InvoiceFailed, InvoicePending:
		return st, nil
	default:
		return "", fmt.Errorf("spin: unknown invoice status %q", s)
	}
}

// InvoiceCreator asks the backend for an invoice link.
type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, amount int) (string, error)
}

// InvoiceOpener shows the invoice to the user and reports its outcome.
type InvoiceOpener interface {
	OpenInvoice(link string, done func(InvoiceStatus))
}

// User-visible copy for payment problems.
const (
	MsgPaymentUnavailable = "Оплата недоступна в вашей версии Telegram."
	MsgInvoiceFailed      = "Не удалось создать счет на оплату."
	MsgInvoiceNoLink      = "Ссылка на оплату не получена."
	MsgPaymentFailed      = "Платеж не прошел. Попробуйте снова."
	MsgPaymentError       = "Ошибка оплаты."
)

// NoticeError carries a message meant for the user alongside the cause.
type NoticeError struct {
	Message string
	Err     error
}

func (e *NoticeError) Error() string {
	if e.Err == nil {
		return "spin: " + e.Message
	}
	return fmt.Sprintf("spin: %s: %v", e.Message, e.Err)
}

func (e *NoticeError) Unwrap() error { return e.Err }

// Errors returned by controller operations.
var (
	ErrBusy               = errors.New("spin: controller is busy")
	ErrClosed             = errors.New("spin: controller is closed")
	ErrUnknownTier        = errors.New("spin: unknown tier")
	ErrInvoiceUnsupported = &NoticeError{Message: MsgPaymentUnavailable}
)

// UserMessage extracts the text to show for err, "" for nil.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var notice *NoticeError
	if errors.As(err, &notice) {
		return notice.Message
	}
	return MsgPaymentError
}
