// Package natsclient provides NATS connection management and a JetStream
// key-value wrapper for the networked mapping store backend.
//
// The client is constructed once at startup, probed for connectivity, and
// either backs the KV mapping store or is discarded in favor of the
// file-backed fallback. KV operations use last-writer-wins Put semantics;
// concurrent Created/Removed races for the same object key are resolved by
// whichever mutation lands last.
package natsclient
