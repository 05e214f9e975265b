package store

import (
	"sort"
	"sync"
)

// typeMap collects the flattened fields seen per element type. The views
// created on Close have one column per field.
type typeMap struct {
	sync.RWMutex
	changed bool
	types   map[string]map[string]bool
}

func newTypeMap() *typeMap {
	return &typeMap{
		changed: false,
		types:   map[string]map[string]bool{},
	}
}

// all returns the sorted fields per type.
func (rm *typeMap) all() map[string][]string {
	rm.RLock()
	defer rm.RUnlock()
	all := make(map[string][]string, len(rm.types))
	for name, fields := range rm.types {
		for field := range fields {
			all[name] = append(all[name], field)
		}
		sort.Strings(all[name])
	}
	return all
}

func (rm *typeMap) add(name, field string) {
	rm.Lock()
	defer rm.Unlock()
	rm.addLocked(name, field)
}

func (rm *typeMap) addAll(name string, fields map[string]interface{}) {
	rm.Lock()
	defer rm.Unlock()
	for field := range fields {
		rm.addLocked(name, field)
	}
}

func (rm *typeMap) addLocked(name, field string) {
	if _, ok := rm.types[name]; !ok {
		rm.types[name] = map[string]bool{}
	}
	if !rm.types[name][field] {
		rm.types[name][field] = true
		rm.changed = true
	}
}

func (rm *typeMap) isChanged() bool {
	rm.RLock()
	defer rm.RUnlock()
	return rm.changed
}
