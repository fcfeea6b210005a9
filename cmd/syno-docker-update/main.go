package main

import "github.com/oshokin/syno-docker-update/cmd/syno-docker-update/cmd"

func main() {
	cmd.Execute()
}
