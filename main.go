// The main package for the rank tracker executable.
package main

import (
	"github.com/JakeFAU/storefront-rank-tracker/cmd"
)

func main() {
	cmd.Execute()
}
