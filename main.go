package main

import "github.com/andresmejia3/facerank/cmd"

func main() {
	cmd.Execute()
}
