// Command frontier runs the distributed crawl frontier.
package main

import "github.com/JakeFAU/sitemap-frontier/cmd"

func main() {
	cmd.Execute()
}
