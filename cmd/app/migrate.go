package main

import (
	"github.com/spf13/cobra"
)

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	repository, err := openRepository(commandContext(cmd), cfg, logger)
	if err != nil {
		return err
	}
	repository.Close()
	return nil
}
