package mqtt

import "strings"

// TopicRoot is the root of every topic tickerbox itself owns.
const TopicRoot = "tickerbox"

// StreamFaultSuffix is the topic segment a bridge publishes faults to,
// under the configured stream prefix.
const StreamFaultSuffix = "_fault"

// Topics builds tickerbox MQTT topic names.
//
//	mqtt.Topics{}.SystemHealth()                       // tickerbox/system/health
//	mqtt.Topics{}.StreamItem("tickerbox/stream", "go") // tickerbox/stream/go
type Topics struct{}

// SystemStatus is the retained online/offline presence topic (also the LWT).
func (Topics) SystemStatus() string {
	return TopicRoot + "/system/status"
}

// SystemHealth is the retained supervisor stats topic.
func (Topics) SystemHealth() string {
	return TopicRoot + "/system/health"
}

// StreamItem is the topic a bridge publishes items for one tracked topic to.
func (Topics) StreamItem(prefix, topic string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + topic
}

// StreamFault is the topic a bridge publishes upstream faults to.
func (t Topics) StreamFault(prefix string) string {
	return t.StreamItem(prefix, StreamFaultSuffix)
}

// TopicFromStream returns the tracked topic encoded in a stream item topic,
// or ok=false if name is not directly under prefix.
func (Topics) TopicFromStream(prefix, name string) (topic string, ok bool) {
	rest, found := strings.CutPrefix(name, strings.TrimSuffix(prefix, "/")+"/")
	if !found || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
