package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dropvendor/unrepair/pkg/cliutil"
	"github.com/dropvendor/unrepair/pkg/elf"
	"github.com/dropvendor/unrepair/pkg/report"
)

func init() {
	var (
		extensionPath string
		bundledPath   string
		systemPath    string
		patch         bool
		patchFrom     string
		outputPath    string
		out           cliutil.OutputFlags
	)

	cmd := &cobra.Command{
		Use:   "check --extension FILE --bundled FILE --system FILE [flags]",
		Short: "Check ELF-level ABI compatibility between a bundled library and a system library",
		Args:  cliutil.WrapPositionalArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := out.Validate(); err != nil {
				return err
			}
			if patchFrom != "soname" && patchFrom != "system-path" {
				return fmt.Errorf(`invalid --patch-needed-from %q: must be "soname" or "system-path"`, patchFrom)
			}

			ext, err := elf.Parse(extensionPath)
			if err != nil {
				return err
			}
			bun, err := elf.Parse(bundledPath)
			if err != nil {
				return err
			}
			sys, err := elf.Parse(systemPath)
			if err != nil {
				return err
			}

			result := elf.Analyze(ext, bun, sys)

			if err := report.WriteCheck(cmd.OutOrStdout(), result, report.CheckOptions{
				Format:  report.Format(out.Format),
				Color:   out.ResolveColor(),
				Verbose: out.Verbose,
			}); err != nil {
				return err
			}

			if result.Verdict != elf.Compatible {
				// spec.md §8 scenario 10: an incompatible verdict skips
				// patching entirely, even if --patch was requested.
				os.Exit(1)
			}

			if patch {
				newName := sys.SOName
				if patchFrom == "system-path" {
					newName = systemPath
				}
				if newName == "" {
					return fmt.Errorf("cannot patch: system library %q has no SONAME", systemPath)
				}
				dest := outputPath
				if dest == "" {
					dest = extensionPath
				}
				if err := elf.ReplaceNeeded(extensionPath, dest, bun.SOName, newName); err != nil {
					return err
				}
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&extensionPath, "extension", "", "The extension module to check")
	cmd.Flags().StringVar(&bundledPath, "bundled", "", "The vendored (bundled) shared library")
	cmd.Flags().StringVar(&systemPath, "system", "", "The candidate system shared library")
	cmd.Flags().BoolVar(&patch, "patch", false, "Patch the extension after a compatible verdict (in place unless --output is given)")
	cmd.Flags().StringVar(&patchFrom, "patch-needed-from", "soname",
		`Replacement DT_NEEDED value: "soname" or "system-path" (requires --patch)`)
	cmd.Flags().StringVar(&outputPath, "output", "", "Patched output path (default: overwrite --extension)")
	out.Register(cmd)

	for _, name := range []string{"extension", "bundled", "system"} {
		if err := cmd.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}

	argparser.AddCommand(cmd)
}
