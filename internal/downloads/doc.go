// Package downloads is the typed download-manager surface over a session
// channel. Every operation is one request and one reply; events arrive through
// per-kind subscriptions that outlive reconnects.
package downloads
