// Package session manages upload connections.
//
// A Conn wraps one TCP (optionally TLS) stream. Its read loop decodes
// frames into a FIFO consumed by the connection owner; responses are
// matched to requests purely by order, so a Conn carries at most one
// outstanding request. Handshake methods move a Conn from Unauthenticated
// to Authenticated. Pool parks one idle Conn between uploads and evicts it
// after Config.IdleTimeout.
package session
