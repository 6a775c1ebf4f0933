// Package panel serves the bridge's status page.
//
// The page is a small static app that lists the rabbits through the REST
// API and follows state changes and webhook events over the WebSocket. Its
// assets are embedded with go:embed; Handler can also serve them from a
// directory while the page is being edited.
package panel
