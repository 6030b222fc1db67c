package main

import "github.com/Norgate-AV/nxbuild/cmd"

func main() {
	cmd.Execute()
}
