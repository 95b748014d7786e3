package broker

import (
	"context"

	"github.com/rs/zerolog/log"

	"stealthcompany.com/openbroker/internal/rpde"
)

// Feed names used by the monitors for status tracking and logging.
const (
	selfFeedName   = "self"
	ordersFeedName = "orders"
)

// SelfFeedHandler returns the ingestion callback for the broker's own
// republished feed. Observing its own output in delivery order is the
// single source of truth for bookability transitions and opportunity
// waiter fulfillment.
func (b *Broker) SelfFeedHandler() rpde.PageHandler {
	return func(ctx context.Context, page *rpde.Page, pageNumber int) error {
		for _, item := range page.Items {
			id := item.IDString()
			if id == "" {
				continue
			}

			if item.Deleted() {
				b.Bookable.Remove(id)
				b.OpportunityWaiters.Fulfill(id, feedItemPayload(item, id, nil))
				continue
			}

			assessment := AssessBookability(item.Data, b.Clock(), b.cfg.BookableLeadTime, b.cfg.BookingChannel)
			if assessment.Bookable {
				b.Bookable.Add(assessment.Type, id)
			} else {
				b.Bookable.Remove(id)
			}

			log.Debug().
				Str("id", id).
				Str("type", assessment.Type).
				Bool("bookable", assessment.Bookable).
				Msg("Observed opportunity on self feed")

			b.OpportunityWaiters.Fulfill(id, feedItemPayload(item, id, &assessment))
		}

		b.Status.RecordPage(selfFeedName, len(page.Items))
		return nil
	}
}

// OrdersHandler returns the ingestion callback for the authenticated orders
// feed. Every observed item fulfills a matching order waiter; no
// bookability logic applies.
func (b *Broker) OrdersHandler() rpde.PageHandler {
	return func(ctx context.Context, page *rpde.Page, pageNumber int) error {
		for _, item := range page.Items {
			id := item.IDString()
			if id == "" {
				continue
			}
			if b.OrderWaiters.Fulfill(id, feedItemPayload(item, id, nil)) {
				log.Info().
					Str("order_id", id).
					Msg("Fulfilled order waiter from orders feed")
			}
		}

		b.Status.RecordPage(ordersFeedName, len(page.Items))
		return nil
	}
}

func feedItemPayload(item rpde.Item, id string, assessment *Assessment) map[string]interface{} {
	payload := map[string]interface{}{
		"state":    item.State,
		"id":       id,
		"modified": item.ModifiedString(),
	}
	if item.Kind != "" {
		payload["kind"] = item.Kind
	}
	if item.Data != nil {
		payload["data"] = item.Data
	}
	if assessment != nil {
		payload["bookable"] = assessment.Bookable
	}
	return payload
}
