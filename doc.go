// Package livediff implements the rendered-tree diff/patch engine behind a
// server-driven reactive UI: a render is represented as a tree of static text
// interleaved with dynamic values, consecutive renders of the same template
// are diffed into sparse change sets, and a client-side reconciler applies
// the resulting markup to a live DOM while preserving focus, selection, and
// externally-owned subtrees.
//
// The server side of the protocol is pure computation: Diff compares two
// trees, Merge reconstructs a tree from a change set, and Flatten produces
// the final HTML string. Handler ties these together over a WebSocket, one
// retained tree per connection. Document and Reconciler form the client
// side, operating on a parsed HTML tree so the patch logic is testable
// without a browser.
package livediff
