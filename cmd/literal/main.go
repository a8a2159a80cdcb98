package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gnituy18/literal"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:           "literal",
		Short:         "Render and preview HTML with reactive ${...} templates",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "config file (yaml)")

	root.AddCommand(newRenderCmd(), newServeCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "literal:", err)
		os.Exit(1)
	}
}

func loadConfig() (*literal.Config, error) {
	return literal.LoadConfig(configPath)
}

func openDocument(path string) (*literal.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	doc, err := literal.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}
