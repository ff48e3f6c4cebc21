package model

import (
	"testing"

	"github.com/cuemby/libcrun-shim/pkg/shimerr"
	"github.com/stretchr/testify/assert"
)

func TestContainerConfigValidate(t *testing.T) {
	valid := ContainerConfig{ID: "c1", Rootfs: "/rootfs", Argv: []string{"sh"}}
	assert.NoError(t, valid.Validate())

	cases := []struct {
		name string
		cfg  ContainerConfig
	}{
		{"missing id", ContainerConfig{Rootfs: "/rootfs", Argv: []string{"sh"}}},
		{"missing rootfs", ContainerConfig{ID: "c1", Argv: []string{"sh"}}},
		{"missing argv", ContainerConfig{ID: "c1", Rootfs: "/rootfs"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			assert.Error(t, err)
			kind, ok := shimerr.KindOf(err)
			assert.True(t, ok)
			assert.Equal(t, shimerr.KindValidation, kind)
		})
	}
}

func TestEventBuilders(t *testing.T) {
	e := NewEvent("c1", EventDie).WithExitCode(137)
	assert.Equal(t, "c1", e.ContainerID)
	assert.Equal(t, EventDie, e.Type)
	assert.NotZero(t, e.Timestamp)
	if assert.NotNil(t, e.ExitCode) {
		assert.EqualValues(t, 137, *e.ExitCode)
	}
}
