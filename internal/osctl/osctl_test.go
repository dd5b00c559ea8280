package osctl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFakeDefaultsToSuccess(t *testing.T) {
	f := &Fake{}
	ctx := context.Background()

	assert.NoError(t, f.RestartNetworking(ctx))
	assert.NoError(t, f.SetLinkUp(ctx, "wlan0", true))

	ifaces, err := f.ListWlanInterfaces(ctx)
	assert.NoError(t, err)
	assert.Empty(t, ifaces)

	assert.NoError(t, f.RequestHardwareReboot(ctx))
	assert.True(t, f.RebootCalled)
}

func TestFakeRecordsLinkUpCalls(t *testing.T) {
	f := &Fake{}
	ctx := context.Background()

	_ = f.SetLinkUp(ctx, "wlan0", false)
	_ = f.SetLinkUp(ctx, "wlan0", true)

	if assert.Len(t, f.LinkUpCalls, 2) {
		assert.Equal(t, "wlan0", f.LinkUpCalls[0].IfName)
		assert.False(t, f.LinkUpCalls[0].Up)
		assert.True(t, f.LinkUpCalls[1].Up)
	}
}

func TestFakeReturnsScriptedErrors(t *testing.T) {
	wantErr := errors.New("boom")
	f := &Fake{
		RestartErr:   wantErr,
		SetLinkUpErr: wantErr,
		ListErr:      wantErr,
		RebootErr:    wantErr,
	}
	ctx := context.Background()

	assert.ErrorIs(t, f.RestartNetworking(ctx), wantErr)
	assert.ErrorIs(t, f.SetLinkUp(ctx, "wlan0", true), wantErr)

	_, err := f.ListWlanInterfaces(ctx)
	assert.ErrorIs(t, err, wantErr)

	assert.ErrorIs(t, f.RequestHardwareReboot(ctx), wantErr)
}

func TestFakeScriptedWlanInterfaces(t *testing.T) {
	f := &Fake{WlanInterfaces: []string{"wlan0", "wlan1"}}
	ifaces, err := f.ListWlanInterfaces(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, []string{"wlan0", "wlan1"}, ifaces)
}
