// Package automation reacts to rabbit webhook events with device commands.
//
// A Rule binds a trigger (a head button gesture or an RFID tag scan on a
// given rabbit) to an ordered list of actions. Actions are grouped by their
// Parallel flag: each group runs concurrently, groups run one after another,
// and a failing action stops the rule unless it sets ContinueOnError.
//
// The Engine implements karotz.Listener, so it is registered on the bridge
// alongside the WebSocket hub and the activity recorder:
//
//	engine, err := automation.NewEngine(rules, bridge, log)
//	if err != nil {
//	    return err
//	}
//	bridge.AddListener(engine)
//	defer engine.Stop()
//
// Commands are issued through the bridge, so every action is acknowledged
// over MQTT and written to the activity log like any other command.
package automation
