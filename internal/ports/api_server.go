package ports

// APIServer defines the interface for the inbound request surface
type APIServer interface {
	// Start starts serving requests
	Start() error

	// Stop gracefully stops the server
	Stop() error
}
