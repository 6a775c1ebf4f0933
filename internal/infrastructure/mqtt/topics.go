package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes of the Gray Logic bus.
//
// Bridge topics use the flat scheme graylogic/{category}/{protocol}/{address}.
const (
	TopicPrefixBridge = "graylogic"
	TopicPrefixCore   = "graylogic/core"
	TopicPrefixSystem = "graylogic/system"
)

// Topics provides builders for the MQTT topics the bridge touches.
//
//	topics := mqtt.Topics{}
//	topics.BridgeState("karotz", "karotz-kitchen")
//	// "graylogic/state/karotz/karotz-kitchen"
type Topics struct{}

// BridgeState returns the retained state topic for one device.
func (Topics) BridgeState(protocol, address string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeCommand returns the command topic for one device.
func (Topics) BridgeCommand(protocol, address string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeCommands returns the wildcard matching every device command of a protocol.
//
// Pattern: graylogic/command/{protocol}/+
func (Topics) BridgeCommands(protocol string) string {
	return fmt.Sprintf("%s/command/%s/+", TopicPrefixBridge, protocol)
}

// BridgeAck returns the command acknowledgement topic for one device.
func (Topics) BridgeAck(protocol, address string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefixBridge, protocol, address)
}

// BridgeHealth returns the retained health topic of a bridge.
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefixBridge, protocol)
}

// CoreEvent returns the topic for an event kind.
//
// Example: graylogic/core/event/tag_scanned
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// SystemStatus returns the retained online/offline topic used for the LWT.
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AddressFromTopic returns the last segment of a flat bridge topic, or ""
// when the topic does not have the graylogic/{category}/{protocol}/{address}
// shape.
func AddressFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0] != TopicPrefixBridge || parts[3] == "" {
		return ""
	}
	return parts[3]
}
