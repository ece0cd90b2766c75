// Package persistence stores the runtime state of a mesh node.
//
// The state file records what the node learned while joining the network:
// its device UUID, the token the mesh daemon handed out on JoinComplete and
// the model configuration received on the last attach. A node that finds a
// token on startup attaches directly instead of joining again.
package persistence
