// Package result defines the Analysis artifact: the single, versioned
// record of one analysed match handed to storage, reporting and any other
// consumer. Field names and JSON tags are a durable contract; additive
// changes keep SchemaVersion, anything else bumps it.
package result
