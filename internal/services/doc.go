// Package services holds shared helpers for the clients garagewatch uses to
// talk to external systems: the Discord history source, the camera snapshot
// endpoint and the Label Studio sync API.
//
// Errors returned by those clients are tagged with one of the exported
// markers through Wrap so callers can tell configuration problems from
// transient outages with errors.Is.
package services
