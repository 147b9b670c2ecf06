// Package session owns the client side of a panel session.
//
// Ownership boundary:
// - dial + login handshake
// - request/reply exchange with reply-code matching and timeout
// - orderly teardown and unsolicited event fan-out
//
// A PanelSession is the only reader and writer of its connection. One
// goroutine reads frames; replies are handed to the single outstanding
// request over a channel and live events go to subscribers.
package session
