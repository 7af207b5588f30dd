// ABOUTME: Version information for the engine binary
// ABOUTME: Product identity reported by the CLI
package version

const (
	// Version is the release of this build
	Version = "0.3.0"

	// Product is the product name
	Product = "Resonate Audio Engine"
)

// String returns the product name followed by the release
func String() string {
	return Product + " " + Version
}
