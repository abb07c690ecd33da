// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Command wevtdump dumps and renders WEVT_TEMPLATE manifests, either
// standalone or extracted straight out of a PE resource.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"os"

	peparser "github.com/saferwall/pe"
	"github.com/spf13/cobra"

	wevt "github.com/saferwall/wevtparse"
)

var (
	all         bool
	verbose     bool
	providerIdx int
	templateIdx int
)

func prettyPrint(buff []byte) string {
	var prettyJSON bytes.Buffer
	if err := json.Indent(&prettyJSON, buff, "", "\t"); err != nil {
		log.Println("JSON parse error: ", err)
		return string(buff)
	}
	return prettyJSON.String()
}

func openManifest(filename string) (*wevt.Manifest, error) {
	return wevt.Open(filename, &wevt.Options{})
}

func dump(cmd *cobra.Command, args []string) {
	filename := args[0]
	log.Printf("Processing filename %s", filename)

	m, err := openManifest(filename)
	if err != nil {
		log.Printf("Error while opening file: %s, reason: %s", filename, err)
		return
	}
	defer m.Close()

	wantAll, _ := cmd.Flags().GetBool("all")
	if wantAll {
		buf, _ := json.Marshal(m)
		fmt.Println(prettyPrint(buf))
		return
	}

	buf, _ := json.Marshal(struct {
		Major       uint16
		Minor       uint16
		Providers   int
		Diagnostics []wevt.Diagnostic
	}{m.Major, m.Minor, m.ProviderCount(), m.Diagnostics})
	fmt.Println(prettyPrint(buf))
}

func render(cmd *cobra.Command, args []string) {
	filename := args[0]

	m, err := openManifest(filename)
	if err != nil {
		log.Printf("Error while opening file: %s, reason: %s", filename, err)
		return
	}
	defer m.Close()

	p := m.ProviderAt(providerIdx)
	if p == nil {
		log.Printf("no provider at index %d", providerIdx)
		return
	}
	if templateIdx < 0 || templateIdx >= len(p.Templates) {
		log.Printf("no template at index %d for provider %d", templateIdx, providerIdx)
		return
	}
	tpl := p.Templates[templateIdx]

	tag, diags, err := tpl.Render(m.CodePage(), p, nil)
	if err != nil {
		log.Printf("Error while interpreting template body: %s", err)
		return
	}
	for _, d := range diags {
		log.Printf("render diagnostic: %s", d.String())
	}

	size, err := tag.SizeUTF8(0)
	if err != nil {
		log.Printf("Error sizing rendered document: %s", err)
		return
	}
	dst := make([]byte, size)
	n, err := tag.RenderUTF8(0, dst)
	if err != nil {
		log.Printf("Error rendering document: %s", err)
		return
	}
	fmt.Println(string(dst[:n]))
}

// findResourceByName walks a resource directory tree for a leaf entry
// whose name (or, transitively, one of its subdirectory entries' name)
// matches name.
func findResourceByName(entries []peparser.ResourceDirectoryEntry, name string) *peparser.ResourceDirectoryEntry {
	for i := range entries {
		e := &entries[i]
		if !e.IsResourceDir && e.Name == name {
			return e
		}
		if e.IsResourceDir {
			if found := findResourceByName(e.Directory.Entries, name); found != nil {
				return found
			}
		}
	}
	return nil
}

// extract pulls a WEVT_TEMPLATE resource out of a PE file using the
// published saferwall/pe parser, then feeds its raw bytes to
// wevt.OpenBytes.
func extract(cmd *cobra.Command, args []string) {
	filename := args[0]

	data, err := os.ReadFile(filename)
	if err != nil {
		log.Printf("Error while reading file: %s, reason: %s", filename, err)
		return
	}

	f, err := peparser.NewBytes(data, &peparser.Options{})
	if err != nil {
		log.Printf("Error while opening file: %s, reason: %s", filename, err)
		return
	}
	defer f.Close()

	if err := f.Parse(); err != nil {
		log.Printf("Error while parsing file: %s, reason: %s", filename, err)
		return
	}

	entry := findResourceByName(f.Resources.Entries, "WEVT_TEMPLATE")
	if entry == nil {
		log.Printf("no WEVT_TEMPLATE resource found in %s", filename)
		return
	}
	resource, err := f.GetData(entry.Data.Struct.OffsetToData, entry.Data.Struct.Size)
	if err != nil {
		log.Printf("Error reading WEVT_TEMPLATE resource data: %s", err)
		return
	}

	m, err := wevt.OpenBytes(resource, &wevt.Options{})
	if err != nil {
		log.Printf("Error while decoding extracted resource: %s", err)
		return
	}
	defer m.Close()

	buf, _ := json.Marshal(m)
	fmt.Println(prettyPrint(buf))
}

func main() {
	var rootCmd = &cobra.Command{
		Use:   "wevtdump",
		Short: "A WEVT_TEMPLATE manifest parser",
		Long:  "Decodes and renders Windows WEVT_TEMPLATE (ETW/EventLog provider) manifests",
		Run: func(cmd *cobra.Command, args []string) {
		},
	}

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version number",
		Long:  "Print version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print("You are using version 0.0.1")
		},
	}

	var dumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Dumps a manifest",
		Long:  "Dumps a decoded WEVT_TEMPLATE manifest as JSON",
		Args:  cobra.ExactArgs(1),
		Run:   dump,
	}

	var renderCmd = &cobra.Command{
		Use:   "render",
		Short: "Renders a template's BXML body as XML text",
		Long:  "Interprets one template's BXML document and prints its rendered XML",
		Args:  cobra.ExactArgs(1),
		Run:   render,
	}

	var extractCmd = &cobra.Command{
		Use:   "extract",
		Short: "Extracts and dumps a WEVT_TEMPLATE resource from a PE file",
		Long:  "Parses a PE file with saferwall/pe, pulls its WEVT_TEMPLATE resource, and decodes it",
		Args:  cobra.ExactArgs(1),
		Run:   extract,
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(dumpCmd)
	rootCmd.AddCommand(renderCmd)
	rootCmd.AddCommand(extractCmd)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (no subcommand reads it)")
	dumpCmd.Flags().BoolVarP(&all, "all", "", false, "Dump full manifest structure")
	renderCmd.Flags().IntVarP(&providerIdx, "provider", "p", 0, "provider index to render from")
	renderCmd.Flags().IntVarP(&templateIdx, "template", "t", 0, "template index within the provider")

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
