package broker

import (
	"testing"
	"time"
)

const testChannel = "https://openactive.io/OpenBookingPrepayment"

func bookableSession(startDate time.Time) map[string]interface{} {
	return map[string]interface{}{
		"@type":                     "ScheduledSession",
		"@id":                       "https://example.com/session/1",
		"startDate":                 startDate.Format(time.RFC3339),
		"remainingAttendeeCapacity": float64(5),
		"offers": []interface{}{
			map[string]interface{}{"price": float64(10)},
		},
	}
}

func TestAssessBookability(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	leadTime := 24 * time.Hour
	farFuture := now.Add(48 * time.Hour)

	tests := []struct {
		name     string
		mutate   func(data map[string]interface{})
		bookable bool
	}{
		{
			name:     "Future session with capacity and an open offer is bookable",
			mutate:   func(data map[string]interface{}) {},
			bookable: true,
		},
		{
			name: "Start date inside the lead time is not bookable",
			mutate: func(data map[string]interface{}) {
				data["startDate"] = now.Add(2 * time.Hour).Format(time.RFC3339)
			},
			bookable: false,
		},
		{
			name: "Zero capacity is not bookable",
			mutate: func(data map[string]interface{}) {
				data["remainingAttendeeCapacity"] = float64(0)
			},
			bookable: false,
		},
		{
			name: "Cancelled event is not bookable",
			mutate: func(data map[string]interface{}) {
				data["eventStatus"] = "https://schema.org/EventCancelled"
			},
			bookable: false,
		},
		{
			name: "Postponed event is not bookable",
			mutate: func(data map[string]interface{}) {
				data["eventStatus"] = "https://schema.org/EventPostponed"
			},
			bookable: false,
		},
		{
			name: "No offers at all is not bookable",
			mutate: func(data map[string]interface{}) {
				delete(data, "offers")
			},
			bookable: false,
		},
		{
			name: "Advance booking unavailable disqualifies the offer",
			mutate: func(data map[string]interface{}) {
				data["offers"] = []interface{}{
					map[string]interface{}{"openBookingInAdvance": "https://openactive.io/Unavailable"},
				}
			},
			bookable: false,
		},
		{
			name: "Advance window not yet open disqualifies the offer",
			mutate: func(data map[string]interface{}) {
				data["offers"] = []interface{}{
					map[string]interface{}{"validFromBeforeStartDate": "PT1H"},
				}
			},
			bookable: false,
		},
		{
			name: "Advance window already open qualifies the offer",
			mutate: func(data map[string]interface{}) {
				data["offers"] = []interface{}{
					map[string]interface{}{"validFromBeforeStartDate": "P30D"},
				}
			},
			bookable: true,
		},
		{
			name: "Channel restriction excluding the booking channel disqualifies",
			mutate: func(data map[string]interface{}) {
				data["offers"] = []interface{}{
					map[string]interface{}{
						"availableChannel": []interface{}{"https://openactive.io/TelephoneAdvanceBooking"},
					},
				}
			},
			bookable: false,
		},
		{
			name: "Channel restriction including the booking channel qualifies",
			mutate: func(data map[string]interface{}) {
				data["offers"] = []interface{}{
					map[string]interface{}{
						"availableChannel": []interface{}{testChannel},
					},
				}
			},
			bookable: true,
		},
		{
			name: "Offers inherited from the parent qualify a session",
			mutate: func(data map[string]interface{}) {
				delete(data, "offers")
				data["superEvent"] = map[string]interface{}{
					"@id": "https://example.com/series/1",
					"offers": []interface{}{
						map[string]interface{}{"price": float64(10)},
					},
				}
			},
			bookable: true,
		},
		{
			name: "Missing start date is not bookable",
			mutate: func(data map[string]interface{}) {
				delete(data, "startDate")
			},
			bookable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := bookableSession(farFuture)
			tt.mutate(data)

			a := AssessBookability(data, now, leadTime, testChannel)
			if a.Bookable != tt.bookable {
				t.Errorf("Expected bookable=%v, got %v (%+v)", tt.bookable, a.Bookable, a)
			}
		})
	}
}

func TestAssessBookabilitySlotCapacityField(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	data := map[string]interface{}{
		"@type":         "Slot",
		"@id":           "https://example.com/slot/1",
		"startDate":     now.Add(48 * time.Hour).Format(time.RFC3339),
		"remainingUses": float64(3),
		"offers": []interface{}{
			map[string]interface{}{"price": float64(5)},
		},
	}

	a := AssessBookability(data, now, 24*time.Hour, testChannel)
	if !a.Bookable {
		t.Errorf("Expected slot with remainingUses to be bookable, got %+v", a)
	}
	if a.Capacity != 3 {
		t.Errorf("Expected capacity 3 from remainingUses, got %d", a.Capacity)
	}

	// Slots do not inherit offers from their facility use.
	delete(data, "offers")
	data["facilityUse"] = map[string]interface{}{
		"@id": "https://example.com/facility/1",
		"offers": []interface{}{
			map[string]interface{}{"price": float64(5)},
		},
	}
	a = AssessBookability(data, now, 24*time.Hour, testChannel)
	if a.Bookable {
		t.Error("Expected slot without own offers to be not bookable")
	}
}
