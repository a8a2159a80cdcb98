package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gnituy18/literal"
)

func newRenderCmd() *cobra.Command {
	var docPath, dataPath, outPath string

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Activate a document, apply data writes and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger, err := cfg.Logger(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			opts, err := cfg.Options(logger)
			if err != nil {
				return err
			}

			doc, err := openDocument(docPath)
			if err != nil {
				return err
			}

			var s *script
			if dataPath != "" {
				f, err := os.Open(dataPath)
				if err != nil {
					return err
				}
				s, err = readScript(f)
				f.Close()
				if err != nil {
					return err
				}
			}

			obs := literal.New(doc, opts...)
			if s != nil {
				if err := s.preload(doc, obs); err != nil {
					return err
				}
			}
			if err := obs.Start(); err != nil {
				return err
			}
			doc.Flush()

			if s != nil {
				if err := s.apply(doc, obs); err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			if err := doc.Render(out); err != nil {
				return fmt.Errorf("render: %w", err)
			}
			_, err = fmt.Fprintln(out)
			return err
		},
	}

	cmd.Flags().StringVar(&docPath, "doc", "", "HTML document")
	cmd.Flags().StringVar(&dataPath, "data", "", "YAML data writes")
	cmd.Flags().StringVarP(&outPath, "output", "o", "", "output file (stdout if empty)")
	_ = cmd.MarkFlagRequired("doc")

	return cmd
}
