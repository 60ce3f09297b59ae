package main

import "go.pilab.hu/fxapi/cmd/fxapi/cmd"

func main() {
	cmd.Execute()
}
