// Package server is fleetsync's connection layer: the HTTP listener, the
// WebSocket hub and the message router that turns inbound envelopes into
// registry operations, responses and broadcasts.
//
// Every message, in both directions, is one envelope:
//
//	{ "id": 17, "type": "values.update", "data": { ... } }
//
// Responses echo the request id and type and carry a data object with
// success:true plus the result, or success:false plus the failing field
// name. Broadcasts carry a freshly generated id and go to every live
// connection except the originator; devices.connect and
// devices.disconnect notices additionally skip device connections, so
// devices never see device-presence chatter.
//
// A connection starts as an observer. A successful devices.connect
// promotes it to a device connection bound to the resolved device id;
// when its transport closes the device is marked disconnected and the
// observers are told.
package server
