// Package audit keeps the activity log of the bridge: every command run
// against a rabbit, whatever its source, and every webhook event a rabbit
// reported. Entries live in the karotz_activity table and are listed by
// GET /api/v1/activity.
package audit
