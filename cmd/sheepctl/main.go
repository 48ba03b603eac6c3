// Command sheepctl is the admin CLI for a sheepdog node: plug/unplug disks
// and list the registered disks. It builds an in-process
// *node.Node from the same config file sheepd uses rather than talking to
// a running daemon over the network, since network transport is out of
// scope here.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/p1nky/sheepdog/internal/node"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "sheepctl",
		Short: "Admin CLI for a sheepdog placement node",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/sheepdog/sheepd.json", "path to node config JSON")

	rootCmd.AddCommand(plugCmd(), unplugCmd(), infoCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func plugCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plug <path,path,...>",
		Short: "Add one or more disks to the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := loadNode()
			if err != nil {
				return err
			}
			return n.Plug(args[0])
		},
	}
}

func unplugCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "unplug <path,path,...>",
		Short: "Remove one or more disks from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := loadNode()
			if err != nil {
				return err
			}
			return n.Unplug(args[0])
		},
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "List registered disks and their current weight",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := loadNode()
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(n.Info())
		},
	}
}

func loadNode() (*node.Node, error) {
	f, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg node.Config
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, err
	}
	return node.New(cfg, nil), nil
}
