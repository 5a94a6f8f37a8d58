// Package domain contains the core entities and value objects for retransmit.
//
// This package is the innermost layer. It has no dependencies on transports,
// logging or configuration and holds only the message model and the error
// vocabulary shared by the rest of the module.
//
// # Entities
//
//   - [Message]: An opaque clustering control message with identity and kind
//   - [DeliveryMode]: Request/response or fire-and-forget delivery
//   - [Status]: Outcome of a retransmission (Pending, Sent, Failed, Canceled)
//   - [TransportFault]: A single failed delivery attempt and its cause
package domain
