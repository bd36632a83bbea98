// Package main (cmd/httpserver) runs the redact client daemon.
//
// The daemon serves private values into third-party pages through a
// two-phase flow. A page embeds GET /data/{path}; that response sets a
// session cookie and renders an iframe pointing at GET /data/{path}/{token}.
// Only the iframe request, carrying both the cookie and the token, sees the
// value. Values may be stored plain, sealed under keys that are themselves
// sealed, or behind references; the daemon resolves them on each request.
//
// Submitted values are sealed under the key already protecting the path, or
// under the default key (.keys.encryption.default.) for new paths. With
// --bootstrap-default-key the default key is created at startup, derived
// from --kms-seed or --kms-shares when one is given.
//
// Every flag can also be set through a REDACT_* environment variable or a
// YAML file passed with --config.
//
// Example usage:
//
//	redact-client --listen-addr=127.0.0.1:8080 \
//	    --storage=file:///var/lib/redact \
//	    --storage=s3://redact-backup/records?region=eu-west-1 \
//	    --redis-url=redis://127.0.0.1:6379/0 \
//	    --kms-seed=0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef
package main
