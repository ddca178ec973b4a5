// Package varstore loads replacement documents (YAML, JSON, TOML or flat
// "KEY VALUE" stamp files) and flattens them into an immutable Store mapping
// dotted paths such as "prog.name" to string values. Flatten performs the
// flattening pass on an already decoded document; Load and Decode combine
// parsing and flattening in a single call.
package varstore
