package session

import (
	"context"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
)

func TestActiveChange(t *testing.T) {
	tests := []struct {
		name    string
		body    []interface{}
		active  bool
		ok      bool
		requery bool
	}{
		{
			name:   "inline active",
			body:   []interface{}{login1Session, map[string]dbus.Variant{"Active": dbus.MakeVariant(true)}, []string{}},
			active: true,
			ok:     true,
		},
		{
			name: "inline inactive",
			body: []interface{}{login1Session, map[string]dbus.Variant{"Active": dbus.MakeVariant(false)}, []string{}},
			ok:   true,
		},
		{
			name:    "invalidated",
			body:    []interface{}{login1Session, map[string]dbus.Variant{}, []string{"IdleHint", "Active"}},
			requery: true,
		},
		{
			name: "other property",
			body: []interface{}{login1Session, map[string]dbus.Variant{"IdleHint": dbus.MakeVariant(true)}, []string{}},
		},
		{
			name: "other interface",
			body: []interface{}{"org.freedesktop.login1.User", map[string]dbus.Variant{"Active": dbus.MakeVariant(true)}, []string{}},
		},
		{
			name:    "wrong type",
			body:    []interface{}{login1Session, map[string]dbus.Variant{"Active": dbus.MakeVariant("yes")}, []string{}},
			requery: true,
		},
		{
			name: "short body",
			body: []interface{}{login1Session},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			active, ok, requery := activeChange(tt.body)
			assert.Equal(t, tt.active, active)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.requery, requery)
		})
	}
}

func TestNoopMonitor(t *testing.T) {
	var got []bool
	m := noopMonitor{}
	assert.NoError(t, m.Start(context.Background(), func(active bool) { got = append(got, active) }))
	assert.NoError(t, m.Stop())
	assert.Equal(t, []bool{true}, got)
}
