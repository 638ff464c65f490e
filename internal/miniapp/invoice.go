package miniapp

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/exp/slog"
)

type invoiceResponse struct {
	InvoiceLink string `json:"invoice_link"`
	// Legacy spelling still served by older backends.
	LegacyLink string `json:"invoiceLink"`
}

func (r invoiceResponse) link() string {
	if l := strings.TrimSpace(r.InvoiceLink); l != "" {
		return l
	}
	return strings.TrimSpace(r.LegacyLink)
}

// CreateInvoice asks the backend for a Stars invoice of amount and returns
// the link to open. It is not retried: a retry could create a second
// invoice. An empty link is returned as "" with no error.
func (c *Client) CreateInvoice(ctx context.Context, amount int) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("miniapp: invalid invoice amount %d", amount)
	}
	var resp invoiceResponse
	query := url.Values{"amount": {strconv.Itoa(amount)}}
	if err := c.doRequest(ctx, "/api/invoice", query, c.InitData(), &resp); err != nil {
		return "", err
	}
	link := resp.link()
	c.log.Debug("invoice created", slog.Int("amount", amount), slog.Bool("has_link", link != ""))
	return link, nil
}
