package serial

import (
	"sort"

	bugserial "go.bug.st/serial"
)

var portsList = bugserial.GetPortsList

// ListPorts returns the port names known to the operating system, sorted.
// No ports is not an error.
func ListPorts() ([]string, error) {
	ports, err := portsList()
	if err != nil {
		return nil, err
	}
	sort.Strings(ports)
	return ports, nil
}

func IsSerialPort(name string) bool {
	ports, err := portsList()
	if err != nil {
		return false
	}
	for _, port := range ports {
		if port == name {
			return true
		}
	}
	return false
}
