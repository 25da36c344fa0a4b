package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"straitjacket/internal/cache"
)

// cacheCmd groups cache maintenance commands
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the formatted-file cache",
}

var cachePathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the cache database location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := cache.DefaultPath(cfg.Cache.Dir)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Forget every formatted file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := cache.DefaultPath(cfg.Cache.Dir)
		if err != nil {
			return err
		}
		c, err := cache.Open(path)
		if err != nil {
			return err
		}
		defer c.Close()

		n, err := c.Len()
		if err != nil {
			return err
		}
		if err := c.Clear(); err != nil {
			return err
		}
		if !quiet {
			fmt.Fprintf(cmd.ErrOrStderr(), "Removed %d cache entries from %s\n", n, path)
		}
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePathCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
