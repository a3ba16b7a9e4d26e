package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/flowsync/internal/definition"
	"github.com/zjrosen/flowsync/internal/pipeline"
	"github.com/zjrosen/flowsync/internal/presentation"
)

var validateOutput string

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Check definitions without contacting the orchestration API",
	Long: `Load and validate definitions. With no arguments every definition under the
root is checked. Nothing is sent and the cache is not touched.

Exits non-zero when any file is invalid.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateOutput, "output", "o", presentation.FormatText, "output format: text or json")
}

func runValidate(cmd *cobra.Command, args []string) error {
	files := args
	if len(files) == 0 {
		var err error
		files, err = pipeline.Discover(cfg.Root, cfg.Extensions, cfg.Recursive)
		if err != nil {
			return err
		}
	}

	results := make([]presentation.ValidationDTO, 0, len(files))
	invalid := 0
	for _, path := range files {
		r := validateFile(path)
		if !r.Valid {
			invalid++
		}
		results = append(results, r)
	}

	if err := presentation.NewFormatter(cmd.OutOrStdout(), validateOutput).FormatValidation(results); err != nil {
		return err
	}
	if invalid > 0 {
		return fmt.Errorf("%d invalid definition(s)", invalid)
	}
	return nil
}

func validateFile(path string) presentation.ValidationDTO {
	def, err := definition.Load(path)
	if err != nil {
		return presentation.ValidationDTO{Path: path, Reasons: []string{err.Error()}}
	}
	res := definition.Validate(def)
	dto := presentation.ValidationDTO{Path: path, Valid: res.Valid, Reasons: res.Reasons}
	if def.ID != "" {
		dto.Flow = def.Ref().String()
	}
	return dto
}
