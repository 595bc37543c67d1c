// Eventgate is a metering API gateway that gives event attendees
// time-boxed, rate-limited access to a shared catalog of AI deployments.
//
// Usage:
//
//	# Start the gateway
//	eventgate run --config config.yaml
//
//	# Check a configuration file
//	eventgate validate --config config.yaml
//
//	# Create a catalog sealing key and seed the catalog
//	eventgate keys generate
//	eventgate catalog import --file catalog.yaml
//
//	# Per-deployment usage for an event
//	eventgate usage report --event ev1 --since 24h
package main

func main() {
	Execute()
}
