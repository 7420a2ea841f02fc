// Package verify drives method verification: it loads program files,
// sets up the entry state of every method and runs the executor over
// the method bodies, concurrently across methods and files.
package verify
