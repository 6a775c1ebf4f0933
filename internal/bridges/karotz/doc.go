// Package karotz integrates OpenKarotz rabbits into Gray Logic.
//
// A rabbit exposes a small CGI API under /cgi-bin/. The package is split into
// three layers:
//
//   - Client translates typed calls (LED, ears, TTS, sound, sleep) into GET
//     requests and normalises the device's {"return":"0"} envelope.
//   - Coordinator owns the last known status snapshot. It polls on a fixed
//     interval and coalesces concurrent refresh requests into one in-flight
//     fetch, then notifies subscribers once per completed fetch.
//   - Entities (Light, LEDEffect, Ears, SleepSwitch, MediaPlayer, Camera,
//     Diagnostics) read the snapshot and issue commands, patching the
//     snapshot optimistically through Coordinator.Patch.
//
// Device groups one rabbit's client, coordinator and entities. Manager holds
// every Device of the process and resolves webhook ids. Bridge connects the
// devices to MQTT: commands in, acks, retained state and events out.
//
// Thread Safety: Client, Coordinator, Device and Bridge are safe for
// concurrent use.
package karotz
