// Package main is the entry point for lexgate.
package main

func main() {
	Execute()
}
