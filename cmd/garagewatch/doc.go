// Package main hosts the garagewatch CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration once, then hands off to the
// collector for history and live runs, to the metadata store for record
// inspection, and to the service clients for Label Studio sync and test
// notifications. Keep commands thin: behaviour belongs in internal packages.
package main
