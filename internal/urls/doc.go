// Package urls provides centralized constants for the external documentation
// and service URLs referenced in hints and help text.
//
// Usage:
//
//	import "github.com/ogctl/ogctl/internal/urls"
//
//	fmt.Printf("For more information, see: %s\n", urls.APIDocs)
package urls
