package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/nihei9/urartu/emit"
	verr "github.com/nihei9/urartu/error"
	"github.com/nihei9/urartu/grammar"
	"github.com/nihei9/urartu/spec"
	"github.com/spf13/cobra"
)

var compileFlags = struct {
	output    *string
	terms     *string
	runtime   *string
	termNames *bool
}{}

func init() {
	cmd := &cobra.Command{
		Use:     "compile",
		Short:   "Compile a grammar into a parser module and a terms module",
		Example: `  urartu compile grammar.ur -o parser.js`,
		Args:    cobra.ExactArgs(1),
		RunE:    runCompile,
	}
	compileFlags.output = cmd.Flags().StringP("output", "o", "", "parser module path (default stdout)")
	compileFlags.terms = cmd.Flags().StringP("terms", "t", "", "terms module path (default: the output path with .terms before its extension)")
	compileFlags.runtime = cmd.Flags().StringP("runtime", "r", "", "module path the parser module imports the runtime from")
	compileFlags.termNames = cmd.Flags().Bool("names", false, "include the term-name table in the parser module")
	rootCmd.AddCommand(cmd)
}

func runCompile(cmd *cobra.Command, args []string) (retErr error) {
	grmPath := args[0]
	defer func() {
		specErrs, ok := retErr.(verr.SpecErrors)
		if !ok {
			return
		}
		for _, err := range specErrs {
			err.FilePath = grmPath
			err.SourceName = grmPath
		}
	}()

	cg, err := compileGrammar(grmPath)
	if err != nil {
		return err
	}

	opts := emit.Options{
		RuntimeImport: *compileFlags.runtime,
		TermNames:     *compileFlags.termNames,
	}
	if *compileFlags.output == "" {
		err = emit.WriteParser(os.Stdout, cg, opts)
		if err != nil {
			return err
		}
		return emit.WriteTerms(os.Stdout, cg)
	}

	parserFile, err := os.Create(*compileFlags.output)
	if err != nil {
		return fmt.Errorf("Cannot write the parser module: %w", err)
	}
	defer parserFile.Close()
	err = emit.WriteParser(parserFile, cg, opts)
	if err != nil {
		return err
	}

	termsPath := *compileFlags.terms
	if termsPath == "" {
		ext := filepath.Ext(*compileFlags.output)
		termsPath = strings.TrimSuffix(*compileFlags.output, ext) + ".terms" + ext
	}
	termsFile, err := os.Create(termsPath)
	if err != nil {
		return fmt.Errorf("Cannot write the terms module: %w", err)
	}
	defer termsFile.Close()
	err = emit.WriteTerms(termsFile, cg)
	if err != nil {
		return err
	}

	if n := cg.AmbiguousStateCount(); n > 0 {
		fmt.Fprintf(os.Stdout, "%v states with resolved conflicts\n", n)
	}
	return nil
}

func compileGrammar(path string) (*grammar.CompiledGrammar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("Cannot open the grammar file %s: %w", path, err)
	}
	defer f.Close()

	file, err := spec.Parse(f, path)
	if err != nil {
		return nil, err
	}

	return grammar.Compile(file, grammar.WithWarnings(func(pos spec.Position, msg string) {
		fmt.Fprintf(os.Stderr, "warning: %v (%v %v:%v)\n", msg, path, pos.Row, pos.Col)
	}))
}
