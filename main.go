package main

import "github.com/brettboylen/tweet-listener/cmd"

func main() {
	cmd.Execute()
}
