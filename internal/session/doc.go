// Package session manages per-device connection lifecycles.
//
// A Session owns one transport link and walks it through the handshake:
// an ID request goes out, the device replies with its identity, the
// identity is verified against the provisioning store, and the session
// becomes active. Commands dispatch only on active sessions; anything
// earlier returns ErrSessionNotReady.
//
// Active sessions track liveness. Any inbound frame refreshes it; a
// background monitor closes the session when the heartbeat window lapses.
// Simulated signs carry synthetic liveness and never expire.
//
// The Registry enforces single-session-per-identity: a newer handshake
// for a connected device evicts the older session.
package session
