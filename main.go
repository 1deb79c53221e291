package main

import "github.com/AnyoneClown/ds-translator/cmd"

func main() {
	cmd.Execute()
}
