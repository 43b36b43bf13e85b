// Package integration runs a full procview server in-process, backed by a mock
// provider, and drives it through the public client: snapshots, history,
// long polling, streaming, metrics and shutdown.
package integration
