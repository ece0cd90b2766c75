// Package model implements the mesh access layer: elements, the models they
// own and the registry that ties them to a transport.
//
// # Hierarchy
//
//	Application (/simulator/application)
//	├── Element 0 (/simulator/ele00, location 0x0100)
//	│   ├── Generic On/Off Server  (0x1000)
//	│   ├── Sensor Server          (0x1100)
//	│   └── Vendor model           (0x05f1:0x0001)
//	├── Element 1 (/simulator/ele01)
//	│   └── Generic On/Off Client  (0x1001)
//	└── ...
//
// An inbound message is delivered to an Element and broadcast to every model
// it owns, in insertion order. Each model decodes the opcode and ignores what
// it does not understand.
//
// # Models
//
// Concrete models embed *Base, which holds the identity, the mutable
// configuration (bindings, subscriptions, publication period) and the
// outbound path. Servers that publish periodically add a Publication, servers
// that accept Set commands add a Transactions tracker.
//
// # Transport
//
// Outbound traffic goes through the Transport interface. Sends are fire and
// forget: the result arrives on a ResultFunc and failures are logged, never
// retried. Implementations must not call back into a model from inside Send
// or Publish, because models call them while holding their state lock.
//
// # Locking
//
// Lock order is Publication, then the model's state lock, then the timer.
// Application and Element locks are never held while calling into a model.
package model
