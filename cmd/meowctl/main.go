package main

import "github.com/meowchat/meowchat/webclient/cmd/meowctl/cmd"

func main() {
	cmd.Execute()
}
