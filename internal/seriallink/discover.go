package seriallink

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes one enumerated serial port.
type PortInfo struct {
	Device      string
	Description string
	HWID        string
}

// usbKeywords match the USB-serial bridge chips the classroom gateways
// enumerate as. Bluetooth virtual COM ports are rejected outright.
var usbKeywords = []string{"usb", "esp", "wroom", "s3", "uart", "cp210", "ch910", "serial"}

// ListPorts enumerates the host's serial ports with USB metadata.
func ListPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}
	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		info := PortInfo{Device: d.Name, Description: d.Product}
		if d.IsUSB {
			info.HWID = fmt.Sprintf("usb vid:pid=%s:%s ser=%s", d.VID, d.PID, d.SerialNumber)
			if info.Description == "" {
				info.Description = "USB Serial"
			}
		}
		ports = append(ports, info)
	}
	return ports, nil
}

// AutoSelect picks the first port that looks like a gateway USB bridge.
func AutoSelect(ports []PortInfo) (PortInfo, bool) {
	for _, p := range ports {
		desc := strings.ToLower(p.Description)
		hwid := strings.ToLower(p.HWID)
		if strings.Contains(desc, "bluetooth") {
			continue
		}
		for _, kw := range usbKeywords {
			if strings.Contains(desc, kw) || strings.Contains(hwid, kw) {
				return p, true
			}
		}
	}
	return PortInfo{}, false
}

// ChoosePort prompts the operator with a numbered list when auto-detection
// finds nothing.
func ChoosePort(ports []PortInfo, in io.Reader, out io.Writer) (PortInfo, error) {
	if len(ports) == 0 {
		return PortInfo{}, errors.New("no serial ports found")
	}
	for i, p := range ports {
		fmt.Fprintf(out, "%d. %s (%s)\n", i+1, p.Device, p.Description)
	}
	fmt.Fprint(out, "Select port number: ")
	var choice int
	if _, err := fmt.Fscan(in, &choice); err != nil {
		return PortInfo{}, fmt.Errorf("read selection: %w", err)
	}
	if choice < 1 || choice > len(ports) {
		return PortInfo{}, fmt.Errorf("selection %d out of range", choice)
	}
	return ports[choice-1], nil
}

// SelectPort runs auto-detection and falls back to a manual prompt.
func SelectPort(in io.Reader, out io.Writer) (string, error) {
	ports, err := ListPorts()
	if err != nil {
		return "", err
	}
	if len(ports) == 0 {
		return "", errors.New("no serial ports found")
	}
	fmt.Fprintln(out, "Available serial ports:")
	for _, p := range ports {
		fmt.Fprintf(out, "  - %s (%s)\n", p.Device, p.Description)
	}
	if best, ok := AutoSelect(ports); ok {
		fmt.Fprintf(out, "auto-selected gateway port: %s (%s)\n", best.Device, best.Description)
		return best.Device, nil
	}
	fmt.Fprintln(out, "no gateway USB port detected, falling back to manual selection")
	p, err := ChoosePort(ports, in, out)
	if err != nil {
		return "", err
	}
	return p.Device, nil
}
