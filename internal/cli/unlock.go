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

package cli

import (
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/jeremyhahn/go-volumekey/internal/password"
	"github.com/jeremyhahn/go-volumekey/pkg/luks2"
	"github.com/jeremyhahn/go-volumekey/pkg/token"
	"github.com/jeremyhahn/go-volumekey/pkg/unlock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// defaultModulePath relies on the dynamic loader's search path;
// p11-kit-proxy multiplexes whatever providers the host has configured.
const defaultModulePath = "p11-kit-proxy.so"

var unlockFlags struct {
	volume    string
	name      string
	metadata  string
	uri       string
	keyFile   string
	keyOffset uint64
	keySize   uint64
	timeout   time.Duration
	headless  bool
}

// unlockCmd recovers a volume key from a security token and prints it
// base64-encoded to stdout, the contract cryptsetup helpers expect.
var unlockCmd = &cobra.Command{
	Use:   "unlock",
	Short: "Recover a volume key from a PKCS#11 security token",
	Long: `Recover a volume's symmetric key by decrypting its wrapped form on a
PKCS#11 security token.

The token and wrapped key come from one of two places:

  automatic   --metadata FILE   read the volume's LUKS2 token metadata
                                (cryptsetup luksDump --dump-json-metadata)
  explicit    --uri PKCS11-URI  with --key-file FILE (and optionally
                                --key-offset/--key-size)

The recovered key is written base64-encoded to stdout.`,
	Example: `  # Automatic discovery from LUKS2 metadata
  volumekey unlock --volume cryptdata --metadata /run/cryptdata-metadata.json

  # Explicit token reference and wrapped key file
  volumekey unlock --volume cryptdata \
      --uri "pkcs11:token=MyToken;object=luks-key" \
      --key-file /etc/cryptdata.wrapped`,
	RunE: runUnlock,
}

func init() {
	f := unlockCmd.Flags()
	f.StringVar(&unlockFlags.volume, "volume", "", "volume name (required)")
	f.StringVar(&unlockFlags.name, "name", "", "human-friendly volume description for PIN prompts")
	f.StringVar(&unlockFlags.metadata, "metadata", "", "LUKS2 JSON metadata file for automatic discovery")
	f.StringVar(&unlockFlags.uri, "uri", "", "PKCS#11 URI of the decryption key")
	f.StringVar(&unlockFlags.keyFile, "key-file", "", "file or AF_UNIX socket holding the wrapped volume key")
	f.Uint64Var(&unlockFlags.keyOffset, "key-offset", 0, "byte offset into the key file")
	f.Uint64Var(&unlockFlags.keySize, "key-size", 0, "maximum bytes to read from the key file")
	f.DurationVar(&unlockFlags.timeout, "timeout", 2*time.Minute, "how long to wait for the token and PIN (0 for a single attempt)")
	f.BoolVar(&unlockFlags.headless, "headless", false, "never prompt; fail if the PIN is not cached")

	unlockCmd.MarkFlagRequired("volume")
}

func runUnlock(cmd *cobra.Command, args []string) error {
	ref, source, err := resolveUnlockInputs()
	if err != nil {
		return err
	}

	mod, err := token.Open(viper.GetString("module"))
	if err != nil {
		return err
	}
	defer mod.Close()

	opts := unlock.Options{
		VolumeName:   unlockFlags.volume,
		FriendlyName: unlockFlags.name,
	}
	if opts.FriendlyName == "" {
		opts.FriendlyName = unlockFlags.volume
	}
	if unlockFlags.timeout > 0 {
		opts.Deadline = time.Now().Add(unlockFlags.timeout)
	}
	if !unlockFlags.headless {
		opts.Prompter = password.NewTerminalPrompter()
	}

	key, err := unlock.DecryptKey(mod.API(), ref, source, opts)
	if err != nil {
		return err
	}
	defer zero(key)

	fmt.Fprintln(os.Stdout, base64.StdEncoding.EncodeToString(key))
	return nil
}

// resolveUnlockInputs picks between automatic metadata discovery and an
// explicit reference plus key source. Mixing the two is rejected.
func resolveUnlockInputs() (*unlock.Reference, unlock.KeySource, error) {
	if unlockFlags.metadata != "" {
		if unlockFlags.uri != "" || unlockFlags.keyFile != "" {
			return nil, nil, fmt.Errorf("--metadata cannot be combined with --uri or --key-file")
		}
		store, err := luks2.LoadFile(unlockFlags.metadata)
		if err != nil {
			return nil, nil, err
		}
		data, err := luks2.ResolveAutoTokenData(store)
		if err != nil {
			return nil, nil, err
		}
		return data.URI, unlock.LiteralSource{Data: data.EncryptedKey}, nil
	}

	if unlockFlags.uri == "" {
		return nil, nil, fmt.Errorf("either --metadata or --uri is required")
	}
	if unlockFlags.keyFile == "" {
		return nil, nil, fmt.Errorf("--uri requires --key-file")
	}
	ref, err := unlock.ParseReference(unlockFlags.uri)
	if err != nil {
		return nil, nil, err
	}
	return ref, unlock.FileSource{
		Path:    unlockFlags.keyFile,
		Offset:  unlockFlags.keyOffset,
		MaxSize: unlockFlags.keySize,
	}, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
