// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-volumekey.
//
// go-volumekey is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package cli implements the volumekey command-line interface.
package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "volumekey",
	Short: "volumekey - unlock encrypted volumes with PKCS#11 security tokens",
	Long: `volumekey recovers the symmetric key of an encrypted volume from a
PKCS#11 security token (smartcard, HSM, USB token). The wrapped volume
key is decrypted on the token by the private key a PKCS#11 URI names,
so the key never exists in the clear outside the unlock process.

The token and wrapped key are either given explicitly (--uri plus a key
source) or discovered automatically from the volume's LUKS2 token
metadata (--metadata).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("module", defaultModulePath,
		"path to the PKCS#11 provider library (.so)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	viper.BindPFlag("module", rootCmd.PersistentFlags().Lookup("module"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(unlockCmd)
	rootCmd.AddCommand(versionCmd)
}

// initConfig wires VOLUMEKEY_* environment variables into every flag,
// so e.g. VOLUMEKEY_MODULE overrides --module.
func initConfig() {
	viper.SetEnvPrefix("VOLUMEKEY")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
