package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var sigCmd = &cobra.Command{
	Use:   "sig",
	Short: "inspect and manage recorded signatures",
}

var sigListCmd = &cobra.Command{
	Use:   "list",
	Short: "list recorded signature keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		keys, err := store.Keys(cmd.Context())
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

var sigRemoveCmd = &cobra.Command{
	Use:   "remove KEY...",
	Short: "remove recorded signatures by key",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		n, err := store.Remove(cmd.Context(), args...)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d signature(s)\n", n)
		return nil
	},
}

var sigClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "remove all recorded signatures",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		return store.Clear(cmd.Context())
	},
}

func init() {
	sigCmd.AddCommand(sigListCmd, sigRemoveCmd, sigClearCmd)
	rootCmd.AddCommand(sigCmd)
}
