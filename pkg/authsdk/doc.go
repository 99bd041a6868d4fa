// Package authsdk holds the wire contract of the tollgate HTTP API: OAuth2
// error values, response bodies and PKCE helpers shared by the server and
// its callers.
package authsdk
