package bulkvalidate

import "time"

const EventName = "diag/bulk-validation.requested"

type BulkRequestedEventData struct {
	UserID    string   `json:"user_id"`
	Plan      string   `json:"plan"`
	Addresses []string `json:"addresses"`
}

type BulkRequestedEnvelope struct {
	EventName string                 `json:"event_name"`
	EventID   string                 `json:"event_id"`
	TS        time.Time              `json:"ts"`
	Data      BulkRequestedEventData `json:"data"`
}
