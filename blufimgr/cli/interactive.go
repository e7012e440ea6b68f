/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/abiosoft/ishell.v2"

	"github.com/blufimgr/blufimgr/bmxact/prov"
)

// Accepts either a device id or an index into the most recent device list.
func resolveDevice(devs []prov.DeviceRecord, arg string) string {
	if idx, err := strconv.Atoi(arg); err == nil && idx >= 0 &&
		idx < len(devs) {

		return devs[idx].Id
	}

	return arg
}

func printNotification(shell *ishell.Shell, n prov.Notification) {
	switch n.Type {
	case prov.NOTIF_STATE_CHANGED:
		shell.Printf("[state] %s -> %s\n", n.PrevState, n.State)

	case prov.NOTIF_DEVICE_FOUND:
		shell.Printf("[found] %s\n", n.Device.String())

	case prov.NOTIF_WIFI_SCAN_RESULT:
		shell.Printf("[wifi] %d network(s)\n", len(n.WifiResults))
		shell.Print(wifiNetworksString(n.WifiResults))

	case prov.NOTIF_ERROR:
		shell.Printf("[error] %s\n", n.Err.Error())
	}
}

func sesnCmd(fn func(c *ishell.Context) error) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if err := fn(c); err != nil {
			c.Println("Error:", err)
		}
	}
}

func startInteractive(cmd *cobra.Command, args []string) {
	s, err := GetSesn()
	if err != nil {
		bmUsage(nil, err)
	}

	shell := ishell.New()
	shell.SetPrompt("blufi> ")
	shell.Println("BluFi interactive mode.  Type help for commands.")

	sub := s.Subscribe(func(n prov.Notification) {
		printNotification(shell, n)
	})
	defer sub.Cancel()

	shell.AddCmd(&ishell.Cmd{
		Name: "scan",
		Help: "start scanning for peripherals",
		Func: sesnCmd(func(c *ishell.Context) error {
			return s.StartScan()
		}),
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "stop",
		Help: "stop scanning",
		Func: sesnCmd(func(c *ishell.Context) error {
			return s.StopScan()
		}),
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "devices",
		Help: "list devices found by the current or most recent scan",
		Func: func(c *ishell.Context) {
			c.Print(devicesString(s.Snapshot().Devices))
		},
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "select",
		Help: "select <index|id>: connect to a discovered device",
		Func: sesnCmd(func(c *ishell.Context) error {
			if len(c.Args) != 1 {
				c.Println("usage: select <index|id>")
				return nil
			}

			return s.SelectDevice(resolveDevice(s.Snapshot().Devices,
				c.Args[0]))
		}),
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "wifiscan",
		Help: "ask the connected device to scan for WiFi networks",
		Func: sesnCmd(func(c *ishell.Context) error {
			return s.ScanRemoteWifi()
		}),
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "configure",
		Help: "configure <ssid> [password]: commit WiFi credentials",
		Func: sesnCmd(func(c *ishell.Context) error {
			if len(c.Args) < 1 || len(c.Args) > 2 {
				c.Println("usage: configure <ssid> [password]")
				return nil
			}

			password := ""
			if len(c.Args) > 1 {
				password = c.Args[1]
			}
			return s.ConfigureWifi(c.Args[0], password)
		}),
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "reset",
		Help: "drop any connection and return to idle",
		Func: sesnCmd(func(c *ishell.Context) error {
			return s.Reset()
		}),
	})

	shell.AddCmd(&ishell.Cmd{
		Name: "state",
		Help: "show the session state",
		Func: func(c *ishell.Context) {
			snap := s.Snapshot()
			c.Print(snapshotString(snap))
			if len(snap.WifiResults) > 0 {
				c.Println("    WifiResults:")
				c.Print(strings.Replace(wifiNetworksString(snap.WifiResults),
					"    ", "        ", -1))
			}
		},
	})

	shell.Run()
	shell.Close()
}

func interactiveCmd() *cobra.Command {
	shellCmd := &cobra.Command{
		Use:   "interactive",
		Short: "Drive a provisioning session from an interactive shell",
		Run:   startInteractive,
	}

	return shellCmd
}
