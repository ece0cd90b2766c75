// Package onoff implements the Generic On/Off server and client models.
//
// The server holds a binary state. Get is answered with Status; Set and Set
// Unacknowledged change the state unless the (tid, source, destination)
// triple repeats the transaction seen within the last six seconds. Only the
// acknowledged Set is answered. While a publication period is configured the
// server publishes its Status on every tick.
//
// The client keeps a rolling transaction identifier and the last command it
// sent, so an operator can repeat it verbatim.
package onoff
