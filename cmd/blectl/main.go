// Command blectl administers the dashboard's local store: migrations, dataset
// imports, cache invalidation and ad hoc comparison tables.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
