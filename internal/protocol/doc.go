// Package protocol defines the wire messages exchanged between the tether
// client and server daemons and the machinery to encode, decode, and
// dispatch them.
//
// Every message travels as a single CBOR array whose first element is the
// message's type tag: [type_tag, field, field, ...]. Decoding happens in two
// phases so a session loop can route a message before its payload schema is
// known: DecodeEnvelope inspects only the tag, then Decode (or a Dispatcher
// binding) decodes the full payload into the concrete message type. The tag
// set is closed; both daemons must agree on the ordinals, which are fixed
// for the life of the protocol.
package protocol
