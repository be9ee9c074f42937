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
	"io"
	"strings"

	"github.com/pilosa/hdk/stream"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// NewReconcileCommand returns a new cobra command which rewrites a TSV file
// under a new header line.
func NewReconcileCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var file string
	var headers []string
	opts := stream.ReconcileOptions{Sep: `\t`, ChunkSize: stream.DefaultChunkSize}
	reconcileCommand := &cobra.Command{
		Use:   "reconcile",
		Short: "reconcile - rewrite a TSV file under a new header line",
		Long: `Replaces the header line of --file with --headers and pads every
data line with empty cells up to the width of the new header. The file is
rewritten to a temporary file and renamed into place.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("file is required")
			}
			if len(headers) == 0 {
				return errors.New("headers are required")
			}
			opts.Sep = strings.NewReplacer(`\t`, "\t").Replace(opts.Sep)
			return stream.Reconcile(file, headers, opts)
		},
	}
	flags := reconcileCommand.Flags()
	flags.StringVarP(&file, "file", "f", "", "TSV file to rewrite in place.")
	flags.StringSliceVarP(&headers, "headers", "H", nil, "Comma separated header columns to write.")
	flags.StringVarP(&opts.Sep, "sep", "", opts.Sep, "Column separator. \\t means tab.")
	flags.IntVarP(&opts.ChunkSize, "chunk-size", "", opts.ChunkSize, "Number of lines rewritten at once.")
	return reconcileCommand
}

func init() {
	subcommandFns["reconcile"] = NewReconcileCommand
}
