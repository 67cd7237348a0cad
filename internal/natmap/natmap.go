// Copyright 2015 The go-probeum Authors
// This file is part of the go-probeum library.
//
// The go-probeum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-probeum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-probeum library. If not, see <http://www.gnu.org/licenses/>.

// Package natmap best-effort maps a local listening port through a home
// router so a daemon behind NAT is reachable at the address it advertises
// in join. Failure to map is never fatal.
package natmap

import (
	"fmt"
	"net"
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"

	"github.com/huin/goupnp/dcps/internetgateway2"

	"github.com/probechain/photomesh/internal/plog"
)

var log = plog.New("component", "natmap")

// Map attempts UPnP IGDv2 first, then falls back to NAT-PMP, to forward
// external TCP port -> internal port. It returns the external IP discovered,
// if any, purely for logging/status purposes; the join address a peer
// advertises is still operator-supplied (spec.md's addressing model is not
// altered by this best-effort convenience).
func Map(internalPort uint16, lease time.Duration) (externalIP string) {
	if ip, err := mapUPnP(internalPort, lease); err == nil {
		log.Info("Mapped port via UPnP", "port", internalPort, "external_ip", ip)
		return ip
	}
	ip, err := mapNATPMP(internalPort, lease)
	if err != nil {
		log.Warn("No NAT mapping available, relying on operator-supplied address", "err", err)
		return ""
	}
	log.Info("Mapped port via NAT-PMP", "port", internalPort, "external_ip", ip)
	return ip
}

func mapUPnP(internalPort uint16, lease time.Duration) (string, error) {
	clients, _, err := internetgateway2.NewWANIPConnection2Clients()
	if err != nil || len(clients) == 0 {
		clients1, _, err1 := internetgateway2.NewWANIPConnection1Clients()
		if err1 != nil || len(clients1) == 0 {
			if err == nil {
				err = err1
			}
			return "", err
		}
		c := clients1[0]
		if err := c.AddPortMapping("", internalPort, "TCP", internalPort, "", true, "photomesh", uint32(lease.Seconds())); err != nil {
			return "", err
		}
		ip, err := c.GetExternalIPAddress()
		return ip, err
	}
	c := clients[0]
	if err := c.AddPortMapping("", internalPort, "TCP", internalPort, "", true, "photomesh", uint32(lease.Seconds())); err != nil {
		return "", err
	}
	ip, err := c.GetExternalIPAddress()
	return ip, err
}

func mapNATPMP(internalPort uint16, lease time.Duration) (string, error) {
	gw, err := defaultGateway()
	if err != nil {
		return "", err
	}
	client := natpmp.NewClient(gw)
	if _, err := client.AddPortMapping("tcp", int(internalPort), int(internalPort), int(lease.Seconds())); err != nil {
		return "", err
	}
	res, err := client.GetExternalAddress()
	if err != nil {
		return "", err
	}
	ip := res.ExternalIPAddress
	return net.IPv4(ip[0], ip[1], ip[2], ip[3]).String(), nil
}

// defaultGateway guesses the LAN gateway by assuming the conventional
// "router is .1 on the interface's /24" layout, since the standard library
// has no portable default-route lookup and this repository's dependency
// list has no gateway-discovery package of its own. Good enough for the
// common home-router case NAT-PMP targets; UPnP discovery (tried first in
// Map) does not need this guess.
func defaultGateway() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	local := conn.LocalAddr().(*net.UDPAddr).IP.To4()
	if local == nil {
		return nil, fmt.Errorf("natmap: no IPv4 local address")
	}
	return net.IPv4(local[0], local[1], local[2], 1), nil
}
