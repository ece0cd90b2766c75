// Package mesh connects an application to a mesh network.
//
// Network is the collaborator that owns provisioning, addressing and
// transport: in production the mesh daemon, in tests and simulation the
// in-memory Loopback. Session drives the node lifecycle against it:
//
//	Idle -> Joining -> Joined -> Attached -> Closed
//
// A session with a persisted token attaches directly. On attach the network
// hands back a transport and the configuration of every model, which the
// session applies to the application.
package mesh
