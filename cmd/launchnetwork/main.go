// Copyright 2017 The go-probeum Authors
// This file is part of go-probeum.
//
// go-probeum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-probeum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-probeum. If not, see <http://www.gnu.org/licenses/>.

// Command launchnetwork spins up a local demo network of N photomeshd
// peers: one bootstrap followed by N-1 joiners, ten seconds apart.
//
//	launch_network <N>
package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"time"

	"github.com/probechain/photomesh/internal/plog"
)

const (
	basePort   = 20000
	joinSpacing = 10 * time.Second
)

var log = plog.New("component", "launchnetwork")

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: launch_network <N>")
		os.Exit(1)
	}
	n, err := strconv.Atoi(os.Args[1])
	if err != nil || n < 1 {
		fmt.Fprintln(os.Stderr, "N must be a positive integer")
		os.Exit(1)
	}

	daemonBin, err := exec.LookPath("photomeshd")
	if err != nil {
		fmt.Fprintln(os.Stderr, "photomeshd must be built and on PATH:", err)
		os.Exit(1)
	}

	var procs []*os.Process
	defer func() {
		for _, p := range procs {
			p.Kill()
		}
	}()

	bootstrapPort := basePort
	folder, err := ioutil.TempDir("", "photomesh-demo-0-")
	if err != nil {
		log.Error("Could not create scratch folder", "err", err)
		os.Exit(1)
	}
	proc, err := spawn(daemonBin, folder, bootstrapPort, 0)
	if err != nil {
		log.Error("Could not start bootstrap peer", "err", err)
		os.Exit(1)
	}
	procs = append(procs, proc)
	log.Info("Started bootstrap peer", "port", bootstrapPort, "folder", folder)

	for i := 1; i < n; i++ {
		time.Sleep(joinSpacing)
		ownPort := basePort + i
		folder, err := ioutil.TempDir("", fmt.Sprintf("photomesh-demo-%d-", i))
		if err != nil {
			log.Error("Could not create scratch folder", "peer", i, "err", err)
			continue
		}
		proc, err := spawn(daemonBin, folder, ownPort, bootstrapPort)
		if err != nil {
			log.Error("Could not start joiner", "peer", i, "err", err)
			continue
		}
		procs = append(procs, proc)
		log.Info("Started joiner", "port", ownPort, "introducer", bootstrapPort, "folder", folder)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt)
	<-sig
	log.Info("Shutting down network")
}

func spawn(bin, folder string, ownPort, peerPort int) (*os.Process, error) {
	args := []string{folder, strconv.Itoa(ownPort)}
	if peerPort != 0 {
		args = append(args, strconv.Itoa(peerPort))
	}
	cmd := exec.Command(bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return cmd.Process, nil
}
