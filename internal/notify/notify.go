// Package notify delivers cancellation notices to clients over the channel
// their contact points at.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"turnero/internal/domain"
	"turnero/internal/models"
)

// ErrNoChannel is returned when no notifier accepts the contact.
var ErrNoChannel = errors.New("no notification channel for contact")

// Router dispatches to the first notifier supporting the contact.
type Router struct {
	notifiers []domain.Notifier
}

func NewRouter(notifiers ...domain.Notifier) *Router {
	r := &Router{}
	for _, n := range notifiers {
		if n != nil {
			r.notifiers = append(r.notifiers, n)
		}
	}
	return r
}

func (r *Router) pick(contact string) domain.Notifier {
	for _, n := range r.notifiers {
		if n.Supports(contact) {
			return n
		}
	}
	return nil
}

func (r *Router) Supports(contact string) bool {
	return r.pick(contact) != nil
}

func (r *Router) NotifyCancellation(ctx context.Context, notice *models.CancellationNotice) error {
	n := r.pick(notice.ClientContact)
	if n == nil {
		return fmt.Errorf("%w: %q", ErrNoChannel, notice.ClientContact)
	}
	return n.NotifyCancellation(ctx, notice)
}

// CancellationText renders the plain-text message sent to the client.
func CancellationText(n *models.CancellationNotice) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your appointment at %s", n.BusinessName)
	if n.ServiceName != "" {
		fmt.Fprintf(&b, " for %s", n.ServiceName)
	}
	fmt.Fprintf(&b, " on %s at %s was cancelled.", n.Date, n.Time)
	if n.Reason != "" {
		fmt.Fprintf(&b, "\nReason: %s", n.Reason)
	}
	if n.BookingLink != "" {
		fmt.Fprintf(&b, "\nBook again: %s", n.BookingLink)
	}
	return b.String()
}
