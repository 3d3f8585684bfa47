package types

// Station identifies a monitoring station, e.g. "A1".
type Station string

// Topics the simulator publishes to, one per reading kind.
const (
	TopicPM25     = "pm25topic"
	TopicPM10     = "pm10topic"
	TopicHumidity = "humiditytopic"
)

// Topics lists every topic in publish order.
var Topics = []string{TopicPM25, TopicPM10, TopicHumidity}

// Reading is the JSON payload published on each topic
type Reading struct {
	Timestamp int64   `json:"timestamp"` // unix seconds
	Value     float64 `json:"value"`
	Station   Station `json:"station"`
}

// Event bundles the readings produced in one tick, keyed by topic.
type Event map[string]Reading
