// Package types holds the shared record types of the retrieval engine:
// chunks, namespaces, ranked results, stats reports, and the sentinel error
// taxonomy. It is storage-free and imported by every other package.
package types
