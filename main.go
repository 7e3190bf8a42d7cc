package main

import "github.com/nextlevelbuilder/opsdesk/cmd"

func main() {
	cmd.Execute()
}
