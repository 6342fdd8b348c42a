// Command book-harvester assembles a text corpus from the Gutendex catalog.
package main

import "github.com/JakeFAU/book-harvester/cmd"

func main() {
	cmd.Execute()
}
