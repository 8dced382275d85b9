// Command hash-token generates a bearer token and the PBKDF2 digest to place
// in the service configuration. With -token it digests an existing value
// instead of generating a new one.
package main

import (
	"flag"
	"fmt"
	"os"

	"coursemedia/internal/auth"
)

func main() {
	existing := flag.String("token", "", "hash this token instead of generating a new one")
	flag.Parse()

	if *existing != "" {
		digest, err := auth.HashToken(*existing)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hash token: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(digest)
		return
	}

	token, digest, err := auth.GenerateToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "generate token: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("token:  %s\ndigest: %s\n", token, digest)
}
