// Package frontgate is a host for packaged frontend components. A component
// ships as a directory containing a YAML manifest, an OpenAPI-shaped API
// specification, and a compiled frontend bundle; frontgate loads it, verifies
// its content fingerprint, and serves it from a single listener.
//
// # Architecture
//
// The host drives component loading through discrete rounds:
//
//	setup ──────→ healthcheck ──────→ done (serving)
//	  │                │
//	  └──→ error ←─────┘
//	        │
//	        └──→ setup (retry)
//
// The setup round loads and validates the manifest, parses the API
// specification, and constructs every serving component. The healthcheck
// round binds the listener and probes the root route. Done is the terminal
// serving state; any failure lands in the error round, which retries from
// setup after a backoff.
//
// # Serving surfaces
//
// One HTTP listener serves three surfaces, resolved in order:
//
//   - WebSocket channel: /ws upgrades into a session managed by the channel
//     package. Inbound {type, data} envelopes dispatch to registered
//     handlers; outbound events broadcast to every session in order.
//   - Declared API routes: operations from the component's API specification
//     dispatch to handlers bound by operation id, with response bodies
//     validated against the declared schema.
//   - Static assets: everything else resolves against the frontend bundle,
//     with an index.html fallback for client-side routes.
//
// Behaviours are recurring background tasks declared in the manifest, such
// as tailing a log file into the event channel. The behaviour package
// schedules each on its own interval and delivers emitted events to
// connected clients.
//
// # Packages
//
//   - manifest: component descriptor loading and fingerprint verification
//   - gateway: HTTP listener, static assets, API routing
//   - channel: WebSocket session management and event delivery
//   - behaviour: scheduled background tasks
//   - service: the host orchestrator driving the loading rounds
//   - component: shared contracts (lifecycle, discovery, registries)
//   - config, errors, health, metric: ambient infrastructure
//
// The cmd/frontgate binary wires a Host from a JSON configuration file and
// runs it under signal handling.
package frontgate
