package mqtt

import (
	"fmt"
	"strings"
)

// Topics builds the announcement topics for one printer instance.
//
// All topics share the shape <prefix>/<instance>/<leaf>:
//
//	topics := mqtt.Topics{Prefix: "moonrig", Instance: "voron-350"}
//	topics.Motion()  // "moonrig/voron-350/motion"
//	topics.Thermal() // "moonrig/voron-350/thermal"
//	topics.Status()  // "moonrig/voron-350/status"
//
// The prefix may contain slashes ("lab/printers"); the instance is a
// single segment.
type Topics struct {
	Prefix   string
	Instance string
}

// Motion returns the topic for motion command announcements.
func (t Topics) Motion() string {
	return t.join("motion")
}

// Thermal returns the topic for thermal command announcements.
func (t Topics) Thermal() string {
	return t.join("thermal")
}

// Status returns the retained online/offline status topic. Also used as
// the Last Will topic so dashboards see crashes.
func (t Topics) Status() string {
	return t.join("status")
}

func (t Topics) join(leaf string) string {
	return t.Prefix + "/" + t.Instance + "/" + leaf
}

// Validate checks that the prefix and instance produce legal publish
// topics. The instance must be a single non-empty segment.
func (t Topics) Validate() error {
	if strings.Contains(t.Instance, "/") {
		return fmt.Errorf("%w: instance %q must be a single segment", ErrInvalidTopic, t.Instance)
	}
	return ValidateTopic(t.Status())
}

// ValidateTopic checks that a topic is legal for publishing: non-empty,
// no wildcards, no empty segments.
//
// MQTT brokers accept wildcard characters in publish topics as literals,
// which then never match the intended subscriptions. Rejecting them here
// surfaces the configuration mistake immediately.
func ValidateTopic(topic string) error {
	if topic == "" {
		return fmt.Errorf("%w: topic is empty", ErrInvalidTopic)
	}
	if strings.ContainsAny(topic, "+#") {
		return fmt.Errorf("%w: wildcards are not allowed in publish topics (%q)", ErrInvalidTopic, topic)
	}
	for _, segment := range strings.Split(topic, "/") {
		if segment == "" {
			return fmt.Errorf("%w: empty segment in %q", ErrInvalidTopic, topic)
		}
	}
	return nil
}
