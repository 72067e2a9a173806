package main

import "github.com/user/curator/cmd"

func main() {
	cmd.Execute()
}
