// Package main prints the bcrypt hash of a password using the same cost as the server,
// for seeding a local users row by hand without going through the API.
//
//	go run ./cmd/hash 'correct horse battery staple'
package main

import (
	"fmt"
	"os"

	"github.com/event-registry/event-registry/internal/auth"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <password>\n", os.Args[0])
		os.Exit(2)
	}
	hash, err := auth.HashPassword(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
