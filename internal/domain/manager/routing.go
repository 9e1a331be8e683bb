package manager

import (
	"sort"

	"github.com/GriffinCanCode/gazeflow/internal/domain/packet"
)

// RouteNotifications computes what each stream receives this cycle. For
// every destination and every other stream whose status carries one of the
// destination's listen-for keys, the destination's notification gets an
// entry under the source's name holding those keys plus the source's name,
// device_uid and timestamp. Destinations with nothing to receive are
// omitted.
func RouteNotifications(listenFor map[string][]string, statuses map[string]packet.Status) map[string]packet.Notification {
	out := make(map[string]packet.Notification)
	for dest, keys := range listenFor {
		if len(keys) == 0 {
			continue
		}
		for src, st := range statuses {
			if src == dest {
				continue
			}
			entry := routedEntry(st, keys)
			if entry == nil {
				continue
			}
			n, ok := out[dest]
			if !ok {
				n = packet.Notification{}
				out[dest] = n
			}
			n[src] = entry
		}
	}
	return out
}

func routedEntry(st packet.Status, keys []string) map[string]any {
	var entry map[string]any
	for _, k := range keys {
		v, ok := st[k]
		if !ok {
			continue
		}
		if entry == nil {
			entry = map[string]any{
				packet.KeyName:      st[packet.KeyName],
				packet.KeyDeviceUID: st[packet.KeyDeviceUID],
				packet.KeyTimestamp: st[packet.KeyTimestamp],
			}
		}
		entry[k] = v
	}
	return entry
}

// sources lists the stream names a notification carries entries from.
func sources(n packet.Notification) []string {
	names := make([]string, 0, len(n))
	for k := range n {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
