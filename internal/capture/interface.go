/**
 * Capture Interface Resolution.
 *
 * Backs the three ways the daemon picks a capture target: validating a
 * configured interface at startup (PcapSource.Open), falling back to a
 * heuristically-chosen default when none is configured, and printing
 * the available set for the `--list-interfaces` CLI flag.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package capture

import (
	"fmt"
	"net"

	"github.com/google/gopacket/pcap"
)

// NetworkInterface aggregates OS-level interface details needed to
// validate or choose a capture target.
type NetworkInterface struct {
	Name        string
	Description string
	Addresses   []string
	Flags       net.Flags
	IsUp        bool
	IsLoopback  bool
}

// ListInterfaces queries the operating system for every network device
// pcap can attach to.
func ListInterfaces() ([]NetworkInterface, error) {
	devices, err := pcap.FindAllDevs()
	if err != nil {
		return nil, fmt.Errorf("failed to find devices: %w", err)
	}

	interfaces := make([]NetworkInterface, 0, len(devices))

	for _, device := range devices {
		iface := NetworkInterface{
			Name:        device.Name,
			Description: device.Description,
			Addresses:   make([]string, 0, len(device.Addresses)),
		}

		// Collect all associated IP addresses
		for _, addr := range device.Addresses {
			if addr.IP != nil {
				iface.Addresses = append(iface.Addresses, addr.IP.String())
			}
		}

		// Query OS for interface status flags
		netIface, err := net.InterfaceByName(device.Name)
		if err == nil {
			iface.Flags = netIface.Flags
			iface.IsUp = netIface.Flags&net.FlagUp != 0
			iface.IsLoopback = netIface.Flags&net.FlagLoopback != 0
		}

		interfaces = append(interfaces, iface)
	}

	return interfaces, nil
}

// FindInterface locates a specific interface by its system name;
// PcapSource.Open calls this to fail startup fast if the configured
// interface does not exist.
func FindInterface(name string) (*NetworkInterface, error) {
	interfaces, err := ListInterfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range interfaces {
		if iface.Name == name {
			return &iface, nil
		}
	}

	return nil, fmt.Errorf("interface %s not found", name)
}

// GetDefaultInterface applies heuristics to suggest the most likely
// interface for capturing internet traffic; PcapSource.Open falls back
// to this when the config leaves Interface blank.
func GetDefaultInterface() (*NetworkInterface, error) {
	interfaces, err := ListInterfaces()
	if err != nil {
		return nil, err
	}

	// Prioritize active physical interfaces with connectivity
	for _, iface := range interfaces {
		if !iface.IsLoopback && iface.IsUp && len(iface.Addresses) > 0 {
			return &iface, nil
		}
	}

	// Fallback to any physical interface
	for _, iface := range interfaces {
		if !iface.IsLoopback {
			return &iface, nil
		}
	}

	return nil, fmt.Errorf("no suitable interface found")
}

// PrintInterfaces writes a formatted interface listing to stdout; it
// backs the `sentryd --list-interfaces` flag.
func PrintInterfaces() error {
	interfaces, err := ListInterfaces()
	if err != nil {
		return err
	}

	if len(interfaces) == 0 {
		fmt.Println("No network interfaces found")
		return nil
	}

	fmt.Println("\nAvailable network interfaces:")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	for i, iface := range interfaces {
		status := "DOWN"
		if iface.IsUp {
			status = "UP"
		}

		fmt.Printf("\n[%d] %s", i+1, iface.Name)
		if iface.Description != "" && iface.Description != iface.Name {
			fmt.Printf(" (%s)", iface.Description)
		}
		fmt.Printf("\n    Status: %s", status)

		if iface.IsLoopback {
			fmt.Print(" [LOOPBACK]")
		}

		if len(iface.Addresses) > 0 {
			fmt.Printf("\n    Addresses:")
			for _, addr := range iface.Addresses {
				fmt.Printf("\n      - %s", addr)
			}
		} else {
			fmt.Printf("\n    Addresses: None")
		}
	}

	fmt.Println("\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")

	// Recommend best available interface
	defaultIface, err := GetDefaultInterface()
	if err == nil {
		fmt.Printf("\nRecommended interface: %s\n", defaultIface.Name)
	}

	fmt.Println()
	return nil
}
