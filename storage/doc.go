// Package storage provides path-keyed record storage with pluggable backends.
//
// Backends store opaque bytes under a DataPath:
//
//   - File system storage for local development and single-host deployments
//   - S3-compatible object storage
//   - IPFS mutable file system (MFS) through an IPFS node API
//   - Vault KV v2 with optional TLS client certificate authentication
//   - A remote storage service over HTTP(S), with retries
//
// MultiStorageBackend aggregates several backends: reads fall back in order,
// writes go to every available backend. RecordStore layers descriptor
// encoding on top of any backend and implements interfaces.DescriptorStore.
//
// # Storage URI Format
//
// Storage backends are specified using URI format:
//
//	[scheme]://[auth@]host[:port][/path][?params]
//
// Supported URI schemes:
//
//   - file:///var/lib/redact/
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket-name/prefix/?region=us-west-2&endpoint=minio:9000
//   - ipfs://127.0.0.1:5001/redact
//   - vault://vault.example.com:8200/secret/redact?tls=false&token_env=VAULT_TOKEN
//   - https://storage.example.com/ (GET and POST {base}/data/{path})
//
// # Record Keys
//
// A DataPath such as ".profile.firstName." is stored under the key
// "profile.firstName". Keys are flat, so a path and its children never
// collide.
package storage
