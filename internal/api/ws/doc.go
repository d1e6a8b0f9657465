// Package ws bridges application data buses to WebSocket clients. Each
// connection subscribes to one application's event center, streams its
// emissions outward, and accepts emit frames inward.
package ws
