package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forgelink/relay/internal/keys"
)

func newKeygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a signing keypair",
		Long:  "Generates an ed25519 keypair for signing federated events. Put the private key under keys.private_key in forgelink.yaml; peers learn the public key through the handshake.",
		RunE: func(cmd *cobra.Command, args []string) error {
			kp, err := keys.Generate()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "private: %s\n", kp.Private())
			fmt.Fprintf(out, "public:  %s\n", kp.Public())
			return nil
		},
	}
}
