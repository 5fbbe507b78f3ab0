// Package main generates the key material a Keymint deployment needs: an
// Ed25519 signing keypair for credentials and an operator API key.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/keymint/keymint/internal/auth"
	"github.com/keymint/keymint/internal/credential"
)

func main() {
	var (
		keypairOnly  = flag.Bool("keypair", false, "Generate only the Ed25519 signing keypair")
		operatorOnly = flag.Bool("operator-key", false, "Generate only an operator API key")
	)
	flag.Parse()

	all := !*keypairOnly && !*operatorOnly

	if all || *keypairOnly {
		kp, err := credential.GenerateKeyPair()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate keypair: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("LICENSE_SIGNING_KEY=%s\n", kp.PrivateKeyToBase64())
		fmt.Printf("LICENSE_PUBLIC_KEY=%s\n", kp.PublicKeyToBase64())
	}

	if all || *operatorOnly {
		key, err := auth.GenerateOperatorKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "generate operator key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("OPERATOR_KEY=%s\n", key)
		fmt.Printf("OPERATOR_KEY_HASH=%s\n", auth.HashOperatorKey(key))
	}
}
