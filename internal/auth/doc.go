// Package auth provides the access tokens that guard the bridge's command
// endpoints.
//
// Tokens are HS256 JWTs carrying a subject and a Role. They are validated
// by signature only: the bridge keeps no user database. Operators mint
// tokens with the "token" subcommand and present them as a Bearer header.
//
// Roles map statically to permissions (viewer → operator → admin), so an
// authorisation check never touches storage.
package auth
