package store

import (
	"reflect"
	"testing"
)

func Test_typeMap_addAll(t *testing.T) {
	rm := newTypeMap()
	if rm.isChanged() {
		t.Fatal("new typeMap is changed")
	}
	rm.addAll("file", map[string]interface{}{"name": "a", "origin.path": "/a"})
	if !rm.isChanged() {
		t.Error("typeMap not changed after addAll")
	}
}

func Test_typeMap_all(t *testing.T) {
	tests := []struct {
		name   string
		fields []string
		want   map[string][]string
	}{
		{"single", []string{"name"}, map[string][]string{"file": {"name"}}},
		{"sorted", []string{"size", "name", "name"}, map[string][]string{"file": {"name", "size"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := newTypeMap()
			for _, field := range tt.fields {
				rm.add("file", field)
			}
			if got := rm.all(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("all() = %v, want %v", got, tt.want)
			}
		})
	}
}
