package main

import "github.com/fakeyudi/howl/cmd"

func main() {
	cmd.Execute()
}
