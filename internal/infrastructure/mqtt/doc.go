// Package mqtt connects the Karotz bridge to the Gray Logic MQTT bus.
//
// The bridge receives device commands on graylogic/command/karotz/{device}
// and publishes retained state, command acks, RFID/button events and
// bridge health. A retained LWT on graylogic/system/status signals a crash.
//
//	Karotz bridge ↔ MQTT broker ↔ Gray Logic Core / other consumers
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommands("karotz"), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(mqtt.AddressFromTopic(topic), payload)
//	    })
//
// TLS should be enabled for any broker reachable beyond localhost.
package mqtt
