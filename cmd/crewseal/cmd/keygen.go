package cmd

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/crewchat/crewseal/crypto"
	"github.com/crewchat/crewseal/internal/util"
)

var keygenAlgorithm string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an encryption keypair offline",
	Long: `Generates a keypair for the chosen key-wrap algorithm and prints it as
JSON. The private key is printed exactly once and never stored; keep it
somewhere safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := crypto.GenerateKeyPair(keygenAlgorithm, 1)
		if err != nil {
			return err
		}
		defer util.WipeBytes(kp.Private)

		out := struct {
			Algorithm string `json:"algorithm"`
			Public    string `json:"public_key"`
			Private   string `json:"private_key"`
		}{
			Algorithm: kp.Algorithm,
			Public:    base64.StdEncoding.EncodeToString(kp.Public),
			Private:   base64.StdEncoding.EncodeToString(kp.Private),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "The private key above is not recoverable. Store it securely.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(keygenCmd)
	keygenCmd.Flags().StringVar(&keygenAlgorithm, "algorithm", crypto.AlgorithmX25519Wrap,
		fmt.Sprintf("Key-wrap algorithm (%s or %s)", crypto.AlgorithmX25519Wrap, crypto.AlgorithmMLKEM768Wrap))
}
