// Command opshash prints the argon2id hash for an ops credential. The output
// is what SECURE_PPROF_BASIC_AUTH_HASH expects.
package main

import (
	"fmt"
	"os"

	"github.com/bundleworks/bundle-api/internal/app"
)

func main() {
	if len(os.Args) != 2 || os.Args[1] == "" {
		fmt.Fprintln(os.Stderr, "usage: opshash <password>")
		os.Exit(2)
	}
	hash, err := app.HashOpsCredential(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "opshash:", err)
		os.Exit(1)
	}
	fmt.Println(hash)
}
