// Package federation handles everything that crosses a relay boundary:
// tez address partitioning, the inbound admission pipeline, peer
// discovery and the outbound delivery client.
package federation

import "strings"

// Partitioned is the result of splitting recipient addresses by host.
// Local holds bare user ids; Remote groups full addresses under their
// target host.
type Partitioned struct {
	Local  []string
	Remote map[string][]string
}

// ParseAddress splits "<userId>@<host>" into its parts. A bare id with
// no separator yields an empty host, which callers treat as local.
func ParseAddress(addr string) (userID, host string) {
	i := strings.LastIndex(addr, "@")
	if i < 0 {
		return addr, ""
	}
	return addr[:i], addr[i+1:]
}

// Partition splits addresses into local user ids and remote addresses
// grouped by host. An address on ourHost is local; a bare id is local.
func Partition(addresses []string, ourHost string) Partitioned {
	p := Partitioned{Remote: map[string][]string{}}
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		id, host := ParseAddress(addr)
		if host == "" || host == ourHost {
			p.Local = append(p.Local, id)
			continue
		}
		p.Remote[host] = append(p.Remote[host], addr)
	}
	return p
}
