// Command op2534ctl is a flag-driven one-shot CLI over the op2534 facade,
// for scripting against the device without the TUI.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"os"

	"github.com/dschultz-j2534/op2534"
	"github.com/dschultz-j2534/op2534/internal/ptmsg"
)

func main() {
	vbatt := flag.Bool("vbatt", false, "read battery voltage and exit")
	version := flag.Bool("version", false, "print API/DLL/firmware version and exit")
	connect := flag.String("connect", "", "connect the given protocol (iso9141, iso14230, can, iso15765) and exit")
	baud := flag.Uint("baud", 500000, "baud rate to use with -connect")
	flag.Parse()

	if !*vbatt && !*version && *connect == "" {
		flag.Usage()
		os.Exit(2)
	}

	var deviceID uint32
	if rc := op2534.PassThruOpen("", &deviceID); rc != int32(ptmsg.NoError) {
		fmt.Fprintf(os.Stderr, "PassThruOpen failed: rc=%d (%s)\n", rc, ptmsg.Error(rc))
		os.Exit(1)
	}
	defer op2534.PassThruClose(deviceID)

	switch {
	case *vbatt:
		runVBatt(deviceID)
	case *version:
		runVersion(deviceID)
	case *connect != "":
		runConnect(deviceID, *connect, uint32(*baud))
	}
}

func runVBatt(deviceID uint32) {
	var mv uint32
	if rc := op2534.PassThruIoctl(0, op2534.ReadVBatt, nil, &mv); rc != int32(ptmsg.NoError) {
		fmt.Fprintf(os.Stderr, "READ_VBATT failed: rc=%d (%s)\n", rc, ptmsg.Error(rc))
		os.Exit(1)
	}
	fmt.Printf("battery: %d mV\n", mv)
}

func runVersion(deviceID uint32) {
	var api, dll, fw [80]byte
	if rc := op2534.PassThruReadVersion(deviceID, &api, &dll, &fw); rc != int32(ptmsg.NoError) {
		fmt.Fprintf(os.Stderr, "PassThruReadVersion failed: rc=%d (%s)\n", rc, ptmsg.Error(rc))
		os.Exit(1)
	}
	fmt.Printf("api:      %s\n", cString(api[:]))
	fmt.Printf("dll:      %s\n", cString(dll[:]))
	fmt.Printf("firmware: %s\n", cString(fw[:]))
}

func runConnect(deviceID uint32, name string, baud uint32) {
	protocolID, ok := protocolByName(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown protocol %q (want iso9141, iso14230, can, iso15765)\n", name)
		os.Exit(2)
	}
	var channelID uint32
	rc := op2534.PassThruConnect(deviceID, protocolID, 0, baud, &channelID)
	if rc != int32(ptmsg.NoError) {
		fmt.Fprintf(os.Stderr, "PassThruConnect failed: rc=%d (%s)\n", rc, ptmsg.Error(rc))
		os.Exit(1)
	}
	fmt.Printf("connected: channel=%d protocol=%s baud=%d\n", channelID, name, baud)
	op2534.PassThruDisconnect(channelID)
}

func protocolByName(name string) (uint32, bool) {
	switch name {
	case "iso9141":
		return op2534.ProtocolISO9141, true
	case "iso14230":
		return op2534.ProtocolISO14230, true
	case "can":
		return op2534.ProtocolCAN, true
	case "iso15765":
		return op2534.ProtocolISO15765, true
	default:
		return 0, false
	}
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}
