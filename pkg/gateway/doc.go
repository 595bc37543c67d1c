// Package gateway defines the domain model shared by every layer of the
// event gateway: the per-request context, catalog deployments, events,
// attendees, usage records and the error taxonomy.
//
// The package has no dependencies on transport or storage so that the
// authentication, catalog, dialect and forwarding layers can all exchange
// these values without import cycles.
package gateway
