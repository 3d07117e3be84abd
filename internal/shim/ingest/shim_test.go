package ingest

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tamzrod/superscore/internal/control"
	"github.com/tamzrod/superscore/internal/model"
)

// ---- fake receiver ----

type receiver struct {
	ln      net.Listener
	packets chan []byte
	status  byte
}

func startReceiver(t *testing.T, status byte) *receiver {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r := &receiver{ln: ln, packets: make(chan []byte, 8), status: status}
	t.Cleanup(func() { _ = ln.Close() })
	go r.serve()
	return r
}

func (r *receiver) serve() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		go func() {
			defer conn.Close()
			hdr := make([]byte, 10)
			if _, err := io.ReadFull(conn, hdr); err != nil {
				return
			}
			count := int(hdr[8])<<8 | int(hdr[9])
			n := count * 2
			if hdr[3] == 1 || hdr[3] == 2 {
				n = (count + 7) / 8
			}
			body := make([]byte, n)
			if _, err := io.ReadFull(conn, body); err != nil {
				return
			}
			r.packets <- append(hdr, body...)
			_, _ = conn.Write([]byte{r.status})
		}()
	}
}

// ---- tests ----

func TestBuildPacketV1(t *testing.T) {
	pkt := buildPacketV1(3, 7, 0x0102, 2, []byte{0xAA, 0xBB, 0xCC, 0xDD})
	assert.Equal(t, []byte{'R', 'I', 0x01, 3, 0x00, 0x07, 0x01, 0x02, 0x00, 0x02, 0xAA, 0xBB, 0xCC, 0xDD}, pkt)
}

func TestPut_Registers(t *testing.T) {
	r := startReceiver(t, respOK)
	s, err := New(Config{Endpoint: r.ln.Addr().String(), UnitID: 9, Timeout: time.Second})
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), "ir/16:2", model.Ints([]int64{1, 0x0203})))
	pkt := <-r.packets
	assert.Equal(t, []byte{'R', 'I', 0x01, 4, 0x00, 0x09, 0x00, 0x10, 0x00, 0x02, 0x00, 0x01, 0x02, 0x03}, pkt)
}

func TestPut_Bits(t *testing.T) {
	r := startReceiver(t, respOK)
	s, err := New(Config{Endpoint: r.ln.Addr().String(), UnitID: 1})
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), "2/di/0:3", model.Bools([]bool{true, false, true})))
	pkt := <-r.packets
	assert.Equal(t, byte(2), pkt[3])
	assert.Equal(t, byte(2), pkt[5])
	assert.Equal(t, byte(0b101), pkt[10])
}

func TestPut_Rejected(t *testing.T) {
	r := startReceiver(t, respRejected)
	s, err := New(Config{Endpoint: r.ln.Addr().String()})
	require.NoError(t, err)

	err = s.Put(context.Background(), "hr/0", model.Int(1))
	require.True(t, errors.Is(err, ErrRejected), "got %v", err)
}

func TestPut_BadAddressAndValue(t *testing.T) {
	s, err := New(Config{Endpoint: "127.0.0.1:1"})
	require.NoError(t, err)
	require.ErrorIs(t, s.Put(context.Background(), "nope", model.Int(1)), control.ErrConfiguration)
	require.ErrorIs(t, s.Put(context.Background(), "hr/0", model.String("x")), control.ErrConfiguration)
}

func TestWriteOnly(t *testing.T) {
	s, err := New(Config{Endpoint: "127.0.0.1:1"})
	require.NoError(t, err)
	_, err = s.Get(context.Background(), "hr/0")
	require.ErrorIs(t, err, control.ErrConfiguration)
	_, err = s.Monitor(context.Background(), "hr/0", nil)
	require.ErrorIs(t, err, control.ErrConfiguration)
}

func TestNewRequiresEndpoint(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}
