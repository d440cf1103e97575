package main

import "github.com/crewchat/crewseal/cmd/crewseal/cmd"

func main() {
	cmd.Execute()
}
