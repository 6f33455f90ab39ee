package models

import "time"

// Envelope is the JSON body every remote API endpoint returns:
// {error: bool, message: string, data: {...}}.
//
// Offline and Timestamp are only present on synthetic placeholders
// manufactured by the gateway or the interception layer. A placeholder is
// deliberately success-shaped (Error == false, status 200) so callers that
// only check Error keep working without a network.
type Envelope struct {
	Error     bool    `json:"error"`
	Message   string  `json:"message"`
	Data      Payload `json:"data"`
	Offline   bool    `json:"offline,omitempty"`
	Timestamp string  `json:"timestamp,omitempty"`
}

// Payload is the union of the data objects the API returns. Only the fields
// relevant to a given endpoint are populated.
type Payload struct {
	ListStory []StoryRecord `json:"listStory"`
	ID        string        `json:"id,omitempty"`
	Token     string        `json:"token,omitempty"`
}

// StoryRecord is the server-side representation of a product record.
type StoryRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	PhotoURL    string    `json:"photoUrl,omitempty"`
	Lat         *float64  `json:"lat"`
	Lon         *float64  `json:"lon"`
	CreatedAt   time.Time `json:"createdAt"`
}

// NewOfflineEnvelope builds the synthetic offline placeholder:
// {error:false, message:"offline", data:{listStory:[]}, offline:true}.
func NewOfflineEnvelope(now time.Time) *Envelope {
	return &Envelope{
		Error:     false,
		Message:   "offline",
		Data:      Payload{ListStory: []StoryRecord{}},
		Offline:   true,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}
