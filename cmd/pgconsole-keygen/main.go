// Command pgconsole-keygen generates a random secret suitable for the
// [auth] jwtSecret field of a policy file.
//
// Usage:
//
//	go run ./cmd/pgconsole-keygen
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
)

func main() {
	secret, err := generateSecret(32)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate secret: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("jwtSecret =", secret)
	fmt.Println()
	fmt.Println("Paste this into the [auth] table of your policy file:")
	fmt.Println()
	fmt.Printf("[auth]\njwtSecret = \"%s\"\n", secret)
}

func generateSecret(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
