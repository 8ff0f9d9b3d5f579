// Package prosavant provides a distributed resonant-field relay: a minimal
// WebSocket broker that fans text-plus-embedding envelopes out between peers,
// and the client pipeline that publishes, accumulates, and projects the shared
// field.
//
// # Architecture
//
// The system has three roles, all speaking the same envelope format:
//
//   - Broker (broker): a byte-level relay. It never parses payloads; every
//     frame a peer sends is forwarded verbatim to every other peer, best
//     effort, with no replay for late joiners.
//   - Publisher (client, embedding): embeds input text into a fixed-dimension
//     vector and sends one envelope per utterance.
//   - Listener (client, field, projection): subscribes to the relay, appends
//     every decoded envelope to an append-only field buffer, and once enough
//     points exist re-projects the entire buffer to 3-D after each message.
//
// Supporting packages: envelope defines the wire format and its schema
// validation; analysis derives scalar diagnostics from vectors; dataset
// locates and loads the structured auxiliary data; config, errors and metric
// carry configuration, error classification and Prometheus instrumentation.
//
// # Binary
//
// The fieldrelay binary exposes all three roles behind a -mode flag:
//
//	# Host the relay with metrics on :9091
//	fieldrelay -mode serve -config fieldrelay.yaml
//
//	# Publish one utterance
//	fieldrelay -mode publish -broker-url ws://localhost:8765/ -user ada -text "hello field"
//
//	# Accumulate the field and stream projection frames to stdout
//	fieldrelay -mode listen -broker-url ws://localhost:8765/
package prosavant
