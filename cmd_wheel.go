package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dropvendor/unrepair/pkg/cliutil"
	"github.com/dropvendor/unrepair/pkg/config"
	"github.com/dropvendor/unrepair/pkg/report"
	"github.com/dropvendor/unrepair/pkg/wheel"
	"github.com/dropvendor/unrepair/pkg/workflow"
)

func init() {
	var (
		wheelPath     string
		outputWheel   string
		systemLibs    []string
		systemLibDirs []string
		workDir       string
		noStrict      bool
		configPath    string
		out           cliutil.OutputFlags
	)

	cmd := &cobra.Command{
		Use:   "wheel --wheel FILE [flags]",
		Short: "Reverse-vendor a wheel's bundled shared libraries onto system equivalents",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.Validate(); err != nil {
				return err
			}

			if configPath != "" {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("system-lib-dir") {
					systemLibDirs = cfg.SystemLibDirs
				}
				if !cmd.Flags().Changed("no-strict") {
					noStrict = cfg.NoStrict
				}
				if !cmd.Flags().Changed("format") && cfg.Format != "" {
					out.Format = cfg.Format
				}
				if !cmd.Flags().Changed("color") && cfg.Color != "" {
					out.Color = cfg.Color
				}
				if !cmd.Flags().Changed("verbose") && cfg.Verbose {
					out.Verbose = cfg.Verbose
				}
				if err := out.Validate(); err != nil {
					return err
				}
			}

			output := outputWheel
			if output == "" {
				output = wheel.UnrepairedOutputName(wheelPath)
			}

			result, err := workflow.Run(cmd.Context(), workflow.Options{
				WheelPath:     wheelPath,
				OutputWheel:   output,
				SystemLibs:    systemLibs,
				SystemLibDirs: systemLibDirs,
				WorkDir:       workDir,
				Strict:        !noStrict,
			})
			if err != nil {
				return err
			}

			if err := report.WriteWheel(cmd.OutOrStdout(), result, report.WheelOptions{
				Format: report.Format(out.Format),
			}); err != nil {
				return err
			}

			complete := !result.HardFailure && (!result.Strict || len(result.Failures) == 0)
			if !complete {
				os.Exit(1)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&wheelPath, "wheel", "", "The wheel file to reverse-vendor")
	cmd.Flags().StringVar(&outputWheel, "output-wheel", "",
		`Output wheel path (default: "<stem>.unrepaired.whl" beside the input, where <stem> is the input path without ".whl")`)
	cmd.Flags().StringArrayVar(&systemLibs, "system-lib", nil, "A specific system shared library to consider (repeatable)")
	cmd.Flags().StringArrayVar(&systemLibDirs, "system-lib-dir", nil,
		"A directory to search recursively for system shared libraries (repeatable)")
	cmd.Flags().StringVar(&workDir, "workdir", "", "Base directory for the unpack/repack working tree")
	cmd.Flags().BoolVar(&noStrict, "no-strict", false, "Exit 0 even if some extensions were incompatible")
	cmd.Flags().StringVar(&configPath, "config", "", "Optional YAML file of default flag values")
	out.Register(cmd)

	if err := cmd.MarkFlagRequired("wheel"); err != nil {
		panic(err)
	}

	argparser.AddCommand(cmd)
}
