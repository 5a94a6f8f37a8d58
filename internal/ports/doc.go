// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// Ports are the boundaries between the retry core and the outside world. They
// describe what the application needs from external systems without saying
// how those needs are met.
//
// # Port Interfaces
//
//   - [Transport]: Delivers a clustering message to the peer nodes
//   - [Logger]: Structured logging abstraction
//   - [HTTPClient]: HTTP request abstraction for dependency injection
//
// # Usage
//
// The application layer (internal/app) depends only on these interfaces.
// Infrastructure adapters (internal/adapters) implement them with HTTP, NATS,
// zerolog and zap.
package ports
