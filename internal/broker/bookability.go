package broker

import (
	"time"

	"github.com/rs/zerolog/log"
)

const (
	eventStatusCancelled  = "https://schema.org/EventCancelled"
	eventStatusPostponed  = "https://schema.org/EventPostponed"
	advanceBookingBlocked = "https://openactive.io/Unavailable"
)

// Assessment is the derived bookability of one merged feed item.
type Assessment struct {
	Bookable       bool
	Type           string
	StartDate      time.Time
	Capacity       int
	BookableOffers []map[string]interface{}
}

// AssessBookability applies the bookability rules to a merged child
// document: the start date must be more than leadTime in the future, at
// least one offer must be bookable through bookingChannel, remaining
// capacity must be positive, and the event must not be cancelled or
// postponed.
func AssessBookability(data map[string]interface{}, now time.Time, leadTime time.Duration, bookingChannel string) Assessment {
	docType := extractDocumentType(data)
	spec := kindFor(docType)

	a := Assessment{Type: docType}

	startDate, ok := parseStartDate(data["startDate"])
	if !ok {
		return a
	}
	a.StartDate = startDate

	offers := offerList(data["offers"])
	if len(offers) == 0 && spec.InheritsOffers {
		if parent, ok := data[spec.ParentRefField].(map[string]interface{}); ok {
			offers = offerList(parent["offers"])
		}
	}
	for _, offer := range offers {
		if offerBookable(offer, startDate, now, bookingChannel) {
			a.BookableOffers = append(a.BookableOffers, offer)
		}
	}

	a.Capacity = intField(data, spec.CapacityField)

	status, _ := data["eventStatus"].(string)

	a.Bookable = startDate.After(now.Add(leadTime)) &&
		len(a.BookableOffers) > 0 &&
		a.Capacity > 0 &&
		status != eventStatusCancelled &&
		status != eventStatusPostponed

	return a
}

// offerBookable applies the per-offer rules: the offer must not restrict
// its channel away from bookingChannel, must not forbid advance booking,
// and its minimum-advance window (if any) must already be open.
func offerBookable(offer map[string]interface{}, startDate, now time.Time, bookingChannel string) bool {
	if channels, present := offer["availableChannel"]; present {
		if !channelAllowed(channels, bookingChannel) {
			return false
		}
	}

	if advance, ok := offer["openBookingInAdvance"].(string); ok && advance == advanceBookingBlocked {
		return false
	}

	if window, ok := offer["validFromBeforeStartDate"].(string); ok && window != "" {
		d, err := ParseISODuration(window)
		if err != nil {
			log.Debug().
				Str("validFromBeforeStartDate", window).
				Err(err).
				Msg("Unparseable advance-booking window, treating offer as not bookable")
			return false
		}
		if now.Before(startDate.Add(-d)) {
			return false
		}
	}

	return true
}

func channelAllowed(channels interface{}, bookingChannel string) bool {
	switch v := channels.(type) {
	case string:
		return v == bookingChannel
	case []interface{}:
		for _, c := range v {
			if s, ok := c.(string); ok && s == bookingChannel {
				return true
			}
		}
		return false
	}
	return false
}

func parseStartDate(value interface{}) (time.Time, bool) {
	s, ok := value.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func offerList(value interface{}) []map[string]interface{} {
	list, ok := value.([]interface{})
	if !ok {
		return nil
	}
	var offers []map[string]interface{}
	for _, entry := range list {
		if offer, ok := entry.(map[string]interface{}); ok {
			offers = append(offers, offer)
		}
	}
	return offers
}

func intField(data map[string]interface{}, field string) int {
	switch v := data[field].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}
