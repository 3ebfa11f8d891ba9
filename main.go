// Command radar runs the competitor analysis service.
package main

import "github.com/JakeFAU/competition-radar/cmd"

func main() {
	cmd.Execute()
}
