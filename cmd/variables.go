package cmd

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/deploymenttheory/go-nvstorage/internal/common/errors"
	"github.com/deploymenttheory/go-nvstorage/internal/common/fsutil"
	"github.com/deploymenttheory/go-nvstorage/internal/nvstorage"
	"github.com/spf13/cobra"
)

var (
	modeFlag string
	keyFlag  string
	hexFlag  string
	fileFlag string
	outFlag  string
)

var getCmd = &cobra.Command{
	Use:   "get NAME",
	Short: "Read a variable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, key, err := parseModeAndKey()
		if err != nil {
			return err
		}

		return withEngine(func(e *nvstorage.Engine) error {
			payload, ok := e.Read(args[0], mode, key)
			if !ok {
				return fmt.Errorf("%w: %s", errors.ErrVariableNotFound, args[0])
			}
			if outFlag != "" {
				return fsutil.WriteFileAtomic(outFlag, payload, 0644)
			}
			fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(payload))
			return nil
		})
	},
}

var setCmd = &cobra.Command{
	Use:   "set NAME",
	Short: "Write a variable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, key, err := parseModeAndKey()
		if err != nil {
			return err
		}
		payload, err := readPayload()
		if err != nil {
			return err
		}

		return withEngine(func(e *nvstorage.Engine) error {
			if !e.Write(args[0], payload, mode, key) {
				return fmt.Errorf("%w: %s", errors.ErrBackendWrite, args[0])
			}
			return nil
		})
	},
}

var existsCmd = &cobra.Command{
	Use:   "exists NAME",
	Short: "Report whether a variable is present",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *nvstorage.Engine) error {
			fmt.Fprintln(cmd.OutOrStdout(), e.Exists(args[0]))
			return nil
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm NAME",
	Short: "Remove a variable",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *nvstorage.Engine) error {
			if !e.Remove(args[0]) {
				return fmt.Errorf("%w: remove %s", errors.ErrBackendWrite, args[0])
			}
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List variable names",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withEngine(func(e *nvstorage.Engine) error {
			names, ok := e.List()
			if !ok {
				return errors.ErrBackendRead
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{getCmd, setCmd} {
		c.Flags().StringVar(&modeFlag, "mode", "auto", "auto, raw, or a comma list of checksum, compress, encrypt")
		c.Flags().StringVar(&keyFlag, "key", "", "encryption key as hex")
	}
	getCmd.Flags().StringVar(&outFlag, "out", "", "write the payload to this file instead of stdout")
	setCmd.Flags().StringVar(&hexFlag, "hex", "", "payload as hex")
	setCmd.Flags().StringVar(&fileFlag, "file", "", "read the payload from this file")
	setCmd.MarkFlagsMutuallyExclusive("hex", "file")
	setCmd.MarkFlagsOneRequired("hex", "file")
}

func parseModeAndKey() (nvstorage.Mode, []byte, error) {
	mode, err := nvstorage.ParseMode(modeFlag)
	if err != nil {
		return nvstorage.Mode{}, nil, err
	}
	if keyFlag == "" {
		return mode, nil, nil
	}
	key, err := decodeHex(keyFlag)
	if err != nil {
		return nvstorage.Mode{}, nil, fmt.Errorf("--key: %w", err)
	}
	return mode, key, nil
}

func readPayload() ([]byte, error) {
	if fileFlag != "" {
		data, err := fsutil.ReadFile(fileFlag)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, fmt.Errorf("%w: %s", errors.ErrFileNotFound, fileFlag)
			}
			return nil, fmt.Errorf("%w: %v", errors.ErrFileReadError, err)
		}
		return data, nil
	}
	payload, err := decodeHex(hexFlag)
	if err != nil {
		return nil, fmt.Errorf("--hex: %w", err)
	}
	return payload, nil
}

// decodeHex accepts an optional 0x prefix and embedded spaces or colons
func decodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "").Replace(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	return b, nil
}
