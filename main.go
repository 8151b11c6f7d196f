package main

import "github.com/ege-eker/BiometricCheckIn/cmd"

func main() {
	cmd.Execute()
}
