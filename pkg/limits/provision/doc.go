// Package provision applies spend caps declared in a YAML file.
//
// # File Format
//
//	resources:
//	  - id: key-123
//	    daily: 50000
//	    monthly: 1000000
//	  - id: key-456
//	    annual: 25000000
//
// Omitted windows are unlimited. Each listed resource is reconciled to
// exactly the declared caps. Resources dropped from the file since the
// previous apply have their caps removed; resources never listed are left
// alone, so caps set through the API or CLI coexist with the file.
//
// # Reloading
//
// Watcher re-applies the file when it changes. A file that fails to parse
// or validate is logged and the caps already in storage stay as they are.
package provision
