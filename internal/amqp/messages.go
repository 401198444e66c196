package amqp

import (
	"encoding/json"
	"time"
)

// ObservationsIngested announces that a locale's store received new rows.
// Subscribers use it to drop whatever they derived from the old data.
type ObservationsIngested struct {
	Locale    string    `json:"locale"`
	Source    string    `json:"source"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"timestamp"`
}

// NewObservationsIngested creates an event stamped with the current time.
func NewObservationsIngested(locale, source string, count int) *ObservationsIngested {
	return &ObservationsIngested{
		Locale:    locale,
		Source:    source,
		Count:     count,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ObservationsIngested) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ObservationsIngestedFromJSON decodes a message body.
func ObservationsIngestedFromJSON(data []byte) (*ObservationsIngested, error) {
	var msg ObservationsIngested
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
