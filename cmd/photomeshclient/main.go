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

// Command photomeshclient is the interactive session against a running
// daemon: `photomeshclient <daemon_port>`. It issues request_list and
// request_image and is otherwise out of the control plane's scope.
package main

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"

	"github.com/probechain/photomesh/internal/pcommon"
	"github.com/probechain/photomesh/internal/wire"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: photomeshclient <daemon_port>")
		os.Exit(1)
	}
	port, err := strconv.Atoi(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid daemon_port: %v\n", err)
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not connect: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	fmt.Println("photomeshclient — commands: list, get <hash>, quit")
	for {
		input, err := line.Prompt("> ")
		if err != nil {
			break
		}
		line.AppendHistory(input)
		fields := strings.Fields(strings.TrimSpace(input))
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "list":
			doList(conn)
		case "get":
			if len(fields) != 2 {
				fmt.Println("usage: get <hash>")
				continue
			}
			doGet(conn, pcommon.Hash(fields[1]))
		case "quit", "exit":
			return
		default:
			fmt.Println("unknown command:", fields[0])
		}
	}
}

func doList(conn net.Conn) {
	if err := wire.WriteMessage(conn, wire.RequestList{FromID: pcommon.ClientID}); err != nil {
		fmt.Println("send failed:", err)
		return
	}
	msg, err := wire.ReadMessage(conn)
	if err != nil {
		fmt.Println("read failed:", err)
		return
	}
	list, ok := msg.(wire.List)
	if !ok {
		fmt.Println("unexpected reply kind")
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"hash"})
	for _, h := range list.Hashes {
		table.Append([]string{string(h)})
	}
	table.Render()
}

func doGet(conn net.Conn, hash pcommon.Hash) {
	if err := wire.WriteMessage(conn, wire.RequestImage{FromID: pcommon.ClientID, Hash: hash}); err != nil {
		fmt.Println("send failed:", err)
		return
	}
	msg, err := wire.ReadMessage(conn)
	if err != nil {
		fmt.Println("read failed:", err)
		return
	}
	img, ok := msg.(wire.Image)
	if !ok {
		fmt.Println("unexpected reply kind")
		return
	}
	if err := os.WriteFile(img.Filename, img.Bytes, 0o644); err != nil {
		fmt.Println("could not save file:", err)
		return
	}
	fmt.Printf("saved %s (%d bytes)\n", img.Filename, len(img.Bytes))
}
