//go:build !pcap
// +build !pcap

package main

import (
	"fmt"
	"os"
)

// Stub entry point when PCAP support is disabled.
// Build with -tags=pcap to enable capture replay (needs libpcap).
func main() {
	fmt.Fprintln(os.Stderr, "pcap-replay requires PCAP support: rebuild with -tags=pcap")
	os.Exit(1)
}
