// Command msvm assembles, runs and disassembles stack-machine bytecode
// programs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/msvm/msvm/vm"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "msvm",
		Short:         "assemble, run and disassemble stack-machine bytecode",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newRunCmd(&verbose), newAsmCmd(), newDisCmd())
	return root
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if !verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func newRunCmd(verbose *bool) *cobra.Command {
	var fn string
	var module string

	cmd := &cobra.Command{
		Use:   "run SOURCE",
		Short: "assemble and run a program, invoking module.fn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			logger := newLogger(*verbose)
			defer logger.Sync()

			machine := vm.New(vm.WithLogger(logger))
			if err := machine.LoadSource(string(src)); err != nil {
				return fmt.Errorf("load: %w", err)
			}

			results, err := machine.Call(module, fn, nil)
			if err != nil {
				return fmt.Errorf("call %s.%s: %w", module, fn, err)
			}
			for _, r := range results {
				fmt.Println(r.String())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&module, "module", "main", "module containing the entry function")
	cmd.Flags().StringVar(&fn, "fn", "main", "entry function name")
	return cmd
}

func newAsmCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "asm SOURCE",
		Short: "assemble source text to a binary bytecode file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			code, err := vm.Assemble(string(src))
			if err != nil {
				return fmt.Errorf("assemble: %w", err)
			}
			data, err := vm.Encode(code)
			if err != nil {
				return fmt.Errorf("encode: %w", err)
			}
			if out == "" {
				out = args[0] + ".mvb"
			}
			return os.WriteFile(out, data, 0o644)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output bytecode file (default SOURCE.mvb)")
	return cmd
}

func newDisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dis BYTECODE",
		Short: "disassemble a binary bytecode file to assembler text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			code, err := vm.Decode(data)
			if err != nil {
				return fmt.Errorf("decode: %w", err)
			}
			fmt.Print(vm.Disassemble(code))
			return nil
		},
	}
	return cmd
}
