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
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jparklab/synology-photos/cmd/syno-photos/options"
)

func main() {
	runOptions := options.NewRunOptions()

	rootCmd := &cobra.Command{
		Use:   "syno-photos",
		Short: "Photo frame backend for Synology Photos",
		Long: `syno-photos logs in to a Synology NAS, directly or through QuickConnect,
lists photos of one library, album or folder and serves them to a photo frame
display together with a thumbnail proxy.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// flags are parsed by pflag, mark the go flag set parsed for glog
			_ = flag.CommandLine.Parse([]string{})
		},
		SilenceUsage: true,
	}

	cobra.OnInitialize(func() {
		// .env file is optional, don't fail if not found
		_ = godotenv.Load()
	})

	runOptions.AddFlags(rootCmd, rootCmd.PersistentFlags())
	rootCmd.AddCommand(
		newServeCmd(runOptions),
		newCheckLoginCmd(runOptions),
		newRegisterCmd(runOptions),
		newDiagnoseCmd(runOptions),
	)

	_ = flag.Set("logtostderr", "true")
	pflag.CommandLine.AddGoFlagSet(flag.CommandLine)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	os.Exit(0)
}
