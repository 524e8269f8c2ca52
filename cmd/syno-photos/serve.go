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
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/spf13/cobra"

	"github.com/jparklab/synology-photos/cmd/syno-photos/options"
	"github.com/jparklab/synology-photos/pkg/photoframe"
	"github.com/jparklab/synology-photos/pkg/proxy"
	"github.com/jparklab/synology-photos/pkg/server"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(o *options.RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Refresh the photo catalog periodically and serve it to the display",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(o)
			if err != nil {
				return err
			}
			return runServe(a, o.Listen)
		},
	}
	o.AddServeFlags(cmd.Flags())
	return cmd
}

func runServe(a *app, listen string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source := photoframe.SelectSource(a.conf.PhotoOptions)
	pipeline := photoframe.NewPipeline(a.resolver, a.sessions, a.credentials, photoframe.NewFetcher(a.conf.PhotoOptions), source)
	pipeline.Subscribe(func(r photoframe.Result) {
		if r.Err != nil {
			glog.Warningf("Keeping %d photos on display: %s", r.Catalog.Len(), photoframe.UserMessage(r.Err))
		}
	})

	scheduler := photoframe.NewScheduler(pipeline, a.conf.RefreshInterval)
	thumbnails := proxy.NewHandler(a.sessions, a.client)
	thumbnails.OnSessionExpired = func() {
		scheduler.Trigger()
	}
	srv := server.New(listen, pipeline, scheduler, thumbnails, a.conf.ProxyPath, a.conf.RefreshInterval)

	glog.Infof("Showing photos of %s, refreshing every %s", source, a.conf.RefreshInterval)
	scheduler.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		glog.Info("Shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		glog.Errorf("%v", err)
	}
	stop()
	scheduler.Stop()
	pipeline.Close(shutdownCtx)

	return serveErr
}
