// Package server implements the HTTP and WebSocket surface of roomchat.
//
// The implementation is organized into specialized files for configuration,
// the hub that serializes every presence transition, websocket clients,
// routing, the REST API and HTTP handlers.
package server
