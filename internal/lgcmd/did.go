package lgcmd

import (
	"fmt"

	"github.com/gordian-engine/gledger/gdid"
	"github.com/spf13/cobra"
)

func newDIDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "did",
		Short: "Work with decentralized identifiers",
	}

	cmd.AddCommand(newDIDNewCmd())
	return cmd
}

func newDIDNewCmd() *cobra.Command {
	var seed string

	cmd := &cobra.Command{
		Use:   "new",
		Short: "Derive a DID and verkey, from --seed or from a random key",
		Args:  cobra.NoArgs,

		RunE: func(cmd *cobra.Command, _ []string) error {
			var seedBytes []byte
			if seed != "" {
				var err error
				seedBytes, err = gdid.ParseSeed(seed)
				if err != nil {
					return err
				}
			}

			id, err := gdid.NewIdentity(seedBytes)
			if err != nil {
				return err
			}

			abbr, err := gdid.AbbreviateVerkey(id.DID, id.Verkey)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "did: %s\n", id.DID)
			fmt.Fprintf(out, "verkey: %s\n", id.Verkey)
			fmt.Fprintf(out, "abbreviated_verkey: %s\n", abbr)
			return nil
		},
	}

	cmd.Flags().StringVar(&seed, "seed", "", "32 character or 64 hex digit key seed")
	return cmd
}
