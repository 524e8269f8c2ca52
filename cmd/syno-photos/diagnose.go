/*
 * Copyright 2018 Ji-Young Park(jiyoung.park.dev@gmail.com)
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/jparklab/synology-photos/cmd/syno-photos/options"
	"github.com/jparklab/synology-photos/pkg/diagnostic"
	"github.com/jparklab/synology-photos/pkg/photoframe"
	"github.com/jparklab/synology-photos/pkg/synology/api/photos"
)

func newDiagnoseCmd(o *options.RunOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Run resolve, login, fetch and a thumbnail download and report each stage",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(o)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			photoOptions := a.conf.PhotoOptions
			photoOptions.ProxyMode = false

			driver := diagnostic.NewDriver(a.resolver, a.sessions, a.credentials,
				photoframe.NewFetcher(photoOptions), diagnoseSources(photoframe.SelectSource(a.conf.PhotoOptions))...)
			driver.OnDownload = func(size int64) io.Writer {
				return progressbar.DefaultBytes(size, "thumbnail")
			}

			report := driver.Run(ctx)
			printReport(cmd.OutOrStdout(), report)
			if !report.OK() {
				return errors.New("diagnose failed")
			}
			return nil
		},
	}
}

// diagnoseSources lists the configured source, then both spaces for
// information
func diagnoseSources(configured photoframe.Source) []photoframe.Source {
	sources := []photoframe.Source{configured}
	for _, s := range []photoframe.Source{
		{Kind: photoframe.SourcePersonal},
		{Kind: photoframe.SourceShared, Space: photos.SharedSpace},
	} {
		if s.String() != configured.String() {
			sources = append(sources, s)
		}
	}
	return sources
}

func printReport(w io.Writer, report *diagnostic.Report) {
	fmt.Fprintln(w)
	for _, stage := range report.Stages {
		status := "ok"
		switch {
		case !stage.OK && stage.Informational:
			status = "warn"
		case !stage.OK:
			status = "FAIL"
		}
		fmt.Fprintf(w, "%-4s  %-28s %8s  %s\n", status, stage.Name, stage.Duration.Round(time.Millisecond), stage.Detail)
	}
}
