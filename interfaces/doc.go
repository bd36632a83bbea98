// Package interfaces defines the core types and collaborator contracts of the
// redact client, separating them from their implementations.
//
// # Data Model
//
//   - Descriptor: a sealed sum type of Plain, Sealed and Reference records
//   - DataPath: a dot-delimited storage path such as ".profile.firstName."
//   - DataType and Value: typed plaintext produced by resolution
//   - SessionRecord and Grant: the state behind the two-phase serving protocol
//
// # Collaborators
//
//   - StorageBackend: path-keyed byte storage (file, S3, Vault, IPFS, HTTP)
//   - DescriptorStore: storage of encoded descriptors
//   - Cipher: pluggable decrypt/encrypt capability keyed by algorithm name
//   - KMS: deterministic key derivation for bootstrap keys
//   - SessionStore: create/get/destroy of session records
//   - Renderer and Relayer: HTML output and outbound notifications
//
// # Error Types
//
// Sentinel errors shared across packages are declared in errors.go and are
// matched with errors.Is. TypeMismatchError is matched with errors.As.
package interfaces
