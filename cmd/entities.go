// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package cmd

import (
	"fmt"
	"io"
	"log"

	"github.com/pilosa/hdk"
	"github.com/pilosa/hdk/spec"
	"github.com/spf13/cobra"
)

// NewEntitiesCommand returns a new cobra command which prints the entities
// defined by a directory of derivation documents.
func NewEntitiesCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var specDir string
	var verbose bool
	entitiesCommand := &cobra.Command{
		Use:   "entities",
		Short: "entities - list the entities defined in a spec directory",
		Long: `Prints the name of every entity defined at the top level of a
class_derivations mapping in the documents under --spec-dir, one per line,
followed by the documents which define it, in walk order, when --verbose
is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := spec.Load(specDir, spec.OptLogger(hdk.StdLogger{Logger: log.New(stderr, "", log.LstdFlags)}))
			if err != nil {
				return err
			}
			for _, entity := range c.Entities() {
				fmt.Fprintln(stdout, entity)
				if !verbose {
					continue
				}
				for _, d := range c.All() {
					if d.Defines(entity) {
						fmt.Fprintf(stdout, "\t%s\n", d.Path)
					}
				}
			}
			return nil
		},
	}
	flags := entitiesCommand.Flags()
	flags.StringVarP(&specDir, "spec-dir", "s", "", "Directory searched recursively for derivation documents.")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Also print the documents defining each entity.")
	return entitiesCommand
}

func init() {
	subcommandFns["entities"] = NewEntitiesCommand
}
