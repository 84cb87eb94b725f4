// Package api defines the wire types of the relais bridge: the outward
// chat request format, the normalized streaming message format, and the
// error taxonomy shared by all packages.
//
// A chat request is forwarded to the upstream Chat Completions backend;
// the upstream SSE response is re-emitted as a sequence of Message values.
// Every message but the last carries an incremental content delta with
// Done=false; the final message has Done=true, an empty content delta,
// and whatever the stream accumulated (finalized tool call, token usage).
package api
