// Copyright 2022 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	physis "github.com/LouisBrunner/Physis"
	physislog "github.com/LouisBrunner/Physis/log"
	"github.com/spf13/cobra"
)

var (
	gameDir string
	output  string
	verbose bool
)

func prettyPrint(buff []byte) string {
	var prettyJSON bytes.Buffer
	err := json.Indent(&prettyJSON, buff, "", "\t")
	if err != nil {
		log.Println("JSON parse error: ", err)
		return string(buff)
	}

	return prettyJSON.String()
}

func openGameData() *physis.GameData {
	var opts *physis.Options
	if verbose {
		opts = &physis.Options{Logger: physislog.NewStdLogger(os.Stderr)}
	}
	game, err := physis.NewGameData(gameDir, opts)
	if err != nil {
		log.Fatalf("opening %s failed, reason: %v", gameDir, err)
	}
	game.ReloadRepositories()
	return game
}

func extract(cmd *cobra.Command, args []string) {
	game := openGameData()

	for _, path := range args {
		data, err := game.Extract(path)
		if err != nil {
			log.Fatalf("extracting %s failed, reason: %v", path, err)
		}

		dest := output
		if dest == "" {
			dest = filepath.Base(path)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			log.Fatalf("writing %s failed, reason: %v", dest, err)
		}
		fmt.Printf("%s: %d bytes\n", dest, len(data))
	}
}

func sheets(cmd *cobra.Command, args []string) {
	game := openGameData()

	names, err := game.SheetNames()
	if err != nil {
		log.Fatalf("listing sheets failed, reason: %v", err)
	}
	for _, name := range names {
		fmt.Println(name)
	}
}

func dump(cmd *cobra.Command, args []string) {
	for _, filename := range args {
		data, err := os.ReadFile(filename)
		if err != nil {
			log.Fatalf("reading %s failed, reason: %v", filename, err)
		}

		var parsed interface{}
		switch strings.ToLower(filepath.Ext(filename)) {
		case ".mdl":
			parsed, err = physis.ParseMDL(data)
		case ".tex":
			parsed, err = physis.ParseTexture(data)
		case ".exh":
			parsed, err = physis.ParseEXH(data)
		case ".exl":
			parsed, err = physis.ParseEXL(data)
		case ".index":
			parsed, err = physis.ParseIndex(data)
		default:
			log.Fatalf("don't know how to dump %s", filename)
		}
		if err != nil {
			log.Fatalf("parsing %s failed, reason: %v", filename, err)
		}

		b, err := json.Marshal(parsed)
		if err != nil {
			log.Fatalf("marshalling %s failed, reason: %v", filename, err)
		}
		fmt.Println(prettyPrint(b))
	}
}

func patch(cmd *cobra.Command, args []string) {
	game := openGameData()

	for _, patchPath := range args {
		if err := game.ApplyPatch(patchPath); err != nil {
			log.Fatalf("applying %s failed, reason: %v", patchPath, err)
		}
		fmt.Printf("applied %s\n", patchPath)
	}
}

func repair(cmd *cobra.Command, args []string) {
	game := openGameData()

	repairs := game.NeedsRepair()
	if len(repairs) == 0 {
		fmt.Println("no repair needed")
		return
	}
	for _, r := range repairs {
		fmt.Printf("%s: action %v\n", r.Repository.Name, r.Action)
	}
	if err := game.PerformRepair(repairs); err != nil {
		log.Fatalf("repair failed, reason: %v", err)
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "physisdump",
		Short: "physisdump is a SqPack archive dumper",
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
			os.Exit(0)
		},
	}

	extractCmd := &cobra.Command{
		Use:   "extract <asset path>...",
		Short: "Extract assets by their logical path",
		Args:  cobra.MinimumNArgs(1),
		Run:   extract,
	}
	extractCmd.Flags().StringVarP(&output, "output", "o", "", "Output filename")

	sheetsCmd := &cobra.Command{
		Use:   "sheets",
		Short: "List every Excel sheet",
		Run:   sheets,
	}

	dumpCmd := &cobra.Command{
		Use:   "dump <file>...",
		Short: "Dump a parsed asset file as JSON",
		Args:  cobra.MinimumNArgs(1),
		Run:   dump,
	}

	patchCmd := &cobra.Command{
		Use:   "patch <patch file>...",
		Short: "Apply incremental patch files to the game directory",
		Args:  cobra.MinimumNArgs(1),
		Run:   patch,
	}

	repairCmd := &cobra.Command{
		Use:   "repair",
		Short: "Detect and repair repositories with damaged version files",
		Run:   repair,
	}

	for _, c := range []*cobra.Command{extractCmd, sheetsCmd, patchCmd, repairCmd} {
		c.Flags().StringVarP(&gameDir, "game", "g", ".", "Game install directory")
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Verbose output")
	rootCmd.AddCommand(extractCmd, sheetsCmd, dumpCmd, patchCmd, repairCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
