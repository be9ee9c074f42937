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
	"text/tabwriter"
	"time"

	"github.com/pilosa/hdk/harmonize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// NewRunsCommand returns a new cobra command which lists the runs recorded
// in a manifest.
func NewRunsCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var manifest string
	runsCommand := &cobra.Command{
		Use:   "runs",
		Short: "runs - list the runs recorded in a manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			if manifest == "" {
				return errors.New("manifest is required")
			}
			man, err := harmonize.OpenManifest(manifest)
			if err != nil {
				return err
			}
			defer man.Close()
			runs, err := man.ListRuns()
			if err != nil {
				return errors.Wrap(err, "listing runs")
			}
			return printRuns(stdout, runs)
		},
	}
	flags := runsCommand.Flags()
	flags.StringVarP(&manifest, "manifest", "m", "", "Manifest database written by map --manifest.")
	return runsCommand
}

func printRuns(w io.Writer, runs []*harmonize.Run) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tFORMAT\tENTITIES\tRECORDS\tERROR")
	for _, run := range runs {
		var records int64
		for _, e := range run.Entities {
			records += e.Records
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n", run.ID, run.Started.Format(time.RFC3339),
			run.Duration.Round(time.Millisecond), run.Format, len(run.Entities), records, run.Error)
	}
	return tw.Flush()
}

func init() {
	subcommandFns["runs"] = NewRunsCommand
}
