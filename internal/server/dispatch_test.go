package server

import (
	"testing"
)

func TestHandleMessage_Malformed(t *testing.T) {
	t.Run("non-JSON input is dropped", func(t *testing.T) {
		s := newTestServer(t)
		c := connect(s)

		s.handleMessage(c, []byte("not json at all"))
		expectSilence(t, c)
	})

	t.Run("missing type is dropped", func(t *testing.T) {
		s := newTestServer(t)
		c := connect(s)

		s.handleMessage(c, []byte(`{"id": 7, "data": {}}`))
		expectSilence(t, c)
	})

	t.Run("unknown type gets an explicit error", func(t *testing.T) {
		s := newTestServer(t)
		c := connect(s)

		data := send(t, s, c, 7, "devices.reboot", nil)
		wantError(t, data, "type")
	})

	t.Run("malformed data object fails on the leading field", func(t *testing.T) {
		s := newTestServer(t)
		c := connect(s)

		s.handleMessage(c, []byte(`{"id": 1, "type": "devices.store", "data": "not-an-object"}`))
		env := recvEnvelope(t, c)
		wantError(t, decodeEnvData(t, env), "name")
	})
}

func TestHandleMessage_EnvelopeEchoes(t *testing.T) {
	s := newTestServer(t)
	c := connect(s)

	// send() itself asserts the id and type echoes.
	data := send(t, s, c, 42, TypeDevicesIndex, nil)
	wantSuccess(t, data)
}
