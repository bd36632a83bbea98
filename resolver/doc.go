// Package resolver reduces stored descriptors to typed plaintext and writes
// values back.
//
// Resolve fetches the record at a path and follows it until a Plain record is
// reached: references are fetched, sealed records have their key chain
// resolved and are decrypted. Every fetch and every decryption counts as one
// hop against Config.MaxDepth, and each call keeps a visited set of paths so
// that revisiting a path (through references or through a key chain) fails
// with interfaces.ErrCycleDetected instead of looping.
//
// SealAndStore is the inverse: it follows references to the concrete record,
// keeps the algorithm and key of an existing sealed record, and falls back to
// the configured default key for new records.
package resolver
