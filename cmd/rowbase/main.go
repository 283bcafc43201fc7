// Package main is the entry point for Rowbase.
package main

func main() {
	Execute()
}
