// Package upstream implements the client side of the bridge: it issues
// streaming chat requests against the Chat Completions backend named by
// the current credential, reassembles the arbitrarily-fragmented SSE
// byte stream into logical frames, and normalizes each frame into the
// outward message format.
//
// The three pieces compose in a fixed pipeline:
//
//	Client.Stream -> Reassembler.Feed -> Normalizer.Normalize -> chan api.Message
//
// Reassembly and normalization are purely synchronous between reads, so
// messages are always delivered in frame arrival order.
package upstream
