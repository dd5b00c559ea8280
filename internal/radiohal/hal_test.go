package radiohal

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSerial struct {
	bytes.Buffer
	closed bool
	speed  int
}

func (f *fakeSerial) Close() error          { f.closed = true; return nil }
func (f *fakeSerial) SetSpeed(b int) error   { f.speed = b; return nil }

type fakeWifi struct{}

func (fakeWifi) OpenRx(string) (io.ReadCloser, error)  { return io.NopCloser(&bytes.Buffer{}), nil }
func (fakeWifi) OpenTx(string) (io.WriteCloser, error) { return nopWC{&bytes.Buffer{}}, nil }
func (fakeWifi) SetFrequency(string, uint32) error     { return nil }
func (fakeWifi) Close(string) error                    { return nil }

type nopWC struct{ *bytes.Buffer }

func (nopWC) Close() error { return nil }

type flakyCodec struct {
	failures int
	calls    int
}

func (c *flakyCodec) Apply(_ io.ReadWriter, _ SikParams) error {
	c.calls++
	if c.calls <= c.failures {
		return errors.New("transient")
	}
	return nil
}

func twoInterfaces() []Interface {
	return []Interface{
		{Index: 0, Kind: KindSiK, DriverName: "/dev/ttyUSB0", Configurable: true},
		{Index: 1, Kind: KindWiFiMonitor, DriverName: "wlan0", Configurable: true},
	}
}

func newTestHAL(codec SikCodec) (*HAL, *fakeSerial) {
	serial := &fakeSerial{}
	h := New(
		func() ([]Interface, error) { return twoInterfaces(), nil },
		func(string, int) (SerialTransport, error) { return serial, nil },
		codec,
		fakeWifi{},
		func(int) string { return "/dev/ttyUSB0" },
	)
	return h, serial
}

func TestEnumerateAndInfo(t *testing.T) {
	h, _ := newTestHAL(&flakyCodec{})
	require.NoError(t, h.Enumerate())
	assert.Equal(t, 2, h.Count())
	assert.True(t, h.IsSik(0))
	assert.False(t, h.IsSik(1))
}

func TestSikSetParamsRetriesTwiceThenSucceeds(t *testing.T) {
	h, _ := newTestHAL(&flakyCodec{failures: 2})
	require.NoError(t, h.Enumerate())

	err := h.SikSetParams(0, SikParams{FrequencyKhz: 433000})
	require.NoError(t, err)

	info, err := h.Info(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(433000), info.CurrentFrequencyKhz)
}

func TestSikSetParamsFailsAfterExhaustingRetries(t *testing.T) {
	h, _ := newTestHAL(&flakyCodec{failures: 10})
	require.NoError(t, h.Enumerate())

	err := h.SikSetParams(0, SikParams{FrequencyKhz: 433000})
	assert.Error(t, err)
}

func TestSetFrequencyUpdatesAssignedLink(t *testing.T) {
	h, _ := newTestHAL(&flakyCodec{})
	require.NoError(t, h.Enumerate())

	require.NoError(t, h.SetFrequency(1, 2, 5745000))
	info, err := h.Info(1)
	require.NoError(t, err)
	assert.Equal(t, uint32(5745000), info.CurrentFrequencyKhz)
	assert.Equal(t, int8(2), info.AssignedLinkID)
}

func TestCloseClearsOpenFlags(t *testing.T) {
	h, serial := newTestHAL(&flakyCodec{})
	require.NoError(t, h.Enumerate())

	require.NoError(t, h.SikOpenRW(0))
	info, _ := h.Info(0)
	assert.True(t, info.OpenedForRead)
	assert.True(t, info.OpenedForWrite)

	require.NoError(t, h.Close(0))
	assert.True(t, serial.closed)
	info, _ = h.Info(0)
	assert.False(t, info.OpenedForRead)
}
