// Package transport connects sysbus instances across process and host
// boundaries.
//
// The bus itself never serializes anything; the peers in this package do. Each
// push is encoded as a JSON Envelope carrying the event name, the sender chain
// and the arguments. On the receiving side a Relay decodes the envelope,
// appends the local identity to the sender chain and re-broadcasts it on the
// local bus, which keeps relays from bouncing events back to instances that
// already handled them.
//
// Available transports:
//   - NATSPeer / ListenNATS: remote instances sharing a NATS server
//   - RedisPeer / ListenRedis: remote instances sharing a Redis server
//   - StreamPeer / ServeStream: forked children talking over stdin and stdout
//   - MemoryPeer: an instance in the same process, mostly useful in tests
//
// Arguments travel as JSON, so a receiving handler sees the decoded form:
// numbers arrive as float64, structs as map[string]any.
package transport
