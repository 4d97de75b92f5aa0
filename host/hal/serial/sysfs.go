package serial

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Default filesystem roots.
const (
	SysfsTTYPath = "/sys/class/tty"
	DevPath      = "/dev"
)

// ttyPrefixes name the kernel drivers that expose USB serial adapters and
// native USB CDC-ACM boards.
var ttyPrefixes = []string{"ttyACM", "ttyUSB"}

// PortInfo describes a serial port discovered via sysfs.
type PortInfo struct {
	Path         string // Device node, e.g. /dev/ttyACM0
	Name         string // Kernel name, e.g. ttyACM0
	VendorID     uint16 // USB idVendor of the parent device
	ProductID    uint16 // USB idProduct of the parent device
	Manufacturer string
	Product      string
	Serial       string
}

// String returns a one-line description of the port.
func (p PortInfo) String() string {
	var b strings.Builder
	b.WriteString(p.Path)
	if p.VendorID != 0 || p.ProductID != 0 {
		b.WriteString(" [")
		b.WriteString(formatHex16(p.VendorID))
		b.WriteByte(':')
		b.WriteString(formatHex16(p.ProductID))
		b.WriteByte(']')
	}
	if p.Product != "" {
		b.WriteByte(' ')
		b.WriteString(p.Product)
	}
	if p.Serial != "" {
		b.WriteString(" (")
		b.WriteString(p.Serial)
		b.WriteByte(')')
	}
	return b.String()
}

// Enumerate lists USB serial ports known to the kernel.
func Enumerate() ([]PortInfo, error) {
	return scanPorts(SysfsTTYPath, DevPath)
}

// scanPorts scans a sysfs tty class directory for USB serial ports.
func scanPorts(ttyRoot, devRoot string) ([]PortInfo, error) {
	entries, err := os.ReadDir(ttyRoot)
	if err != nil {
		return nil, err
	}

	var ports []PortInfo
	for _, entry := range entries {
		name := entry.Name()
		if !hasTTYPrefix(name) {
			continue
		}

		info := PortInfo{
			Path: filepath.Join(devRoot, name),
			Name: name,
		}
		if usbDir, ok := findUSBParent(filepath.Join(ttyRoot, name, "device")); ok {
			parseUSBParent(usbDir, &info)
		}
		ports = append(ports, info)
	}

	sort.Slice(ports, func(i, j int) bool { return ports[i].Name < ports[j].Name })
	return ports, nil
}

func hasTTYPrefix(name string) bool {
	for _, p := range ttyPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// findUSBParent walks up from a tty's device link to the USB device
// directory, the first ancestor carrying an idVendor attribute.
func findUSBParent(deviceLink string) (string, bool) {
	dir, err := filepath.EvalSymlinks(deviceLink)
	if err != nil {
		return "", false
	}
	for i := 0; i < 4; i++ {
		if _, err := os.Stat(filepath.Join(dir, "idVendor")); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

// parseUSBParent fills USB identity fields from sysfs attributes.
func parseUSBParent(dir string, info *PortInfo) {
	if v, err := readSysfsHexUint16(filepath.Join(dir, "idVendor")); err == nil {
		info.VendorID = v
	}
	if v, err := readSysfsHexUint16(filepath.Join(dir, "idProduct")); err == nil {
		info.ProductID = v
	}
	info.Manufacturer, _ = readSysfsString(filepath.Join(dir, "manufacturer"))
	info.Product, _ = readSysfsString(filepath.Join(dir, "product"))
	info.Serial, _ = readSysfsString(filepath.Join(dir, "serial"))
}

// readSysfsString reads a string from a sysfs attribute file.
func readSysfsString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// readSysfsHexUint16 reads a hexadecimal uint16 from a sysfs attribute file.
func readSysfsHexUint16(path string) (uint16, error) {
	s, err := readSysfsString(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 16)
	if err != nil {
		return 0, err
	}
	return uint16(v), nil
}

func formatHex16(v uint16) string {
	s := strconv.FormatUint(uint64(v), 16)
	return strings.Repeat("0", 4-len(s)) + s
}
