package transport_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/vaultrest/internal/models"
	"github.com/TheMichaelB/vaultrest/internal/session"
	"github.com/TheMichaelB/vaultrest/internal/transport"
)

func TestMockTransportScript(t *testing.T) {
	m := transport.NewMockTransport()
	m.AddFailure(transport.EndpointPreLogin, &models.APIError{Code: models.ErrCodeBadRequest})
	m.AddBinary(transport.EndpointPreLogin, []byte("second"))
	m.AddError(transport.EndpointDeviceToken, assert.AnError)

	sess := session.New("https://a.example/", "")
	ctx := context.Background()

	resp, err := m.Execute(ctx, sess, transport.EndpointPreLogin, []byte("p1"))
	require.NoError(t, err)
	assert.Equal(t, transport.KindError, resp.Kind)
	assert.NotEmpty(t, sess.SessionKey)

	resp, err = m.Execute(ctx, sess, transport.EndpointPreLogin, []byte("p2"))
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), resp.Body)

	_, err = m.Execute(ctx, sess, transport.EndpointDeviceToken, nil)
	assert.ErrorIs(t, err, assert.AnError)

	_, err = m.Execute(ctx, sess, transport.EndpointExecuteCommand, nil)
	assert.Error(t, err, "unscripted endpoints fail")

	calls := m.CallsFor(transport.EndpointPreLogin)
	require.Len(t, calls, 2)
	assert.Equal(t, []byte("p1"), calls[0].Payload)
	assert.Equal(t, "https://a.example/", calls[1].ServerBase)
	assert.Equal(t, 4, m.CallCount())
	assert.Zero(t, m.Pending())
}

func TestMockTransportHonoursContext(t *testing.T) {
	m := transport.NewMockTransport()
	m.AddBinary(transport.EndpointPreLogin, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Execute(ctx, session.New("", ""), transport.EndpointPreLogin, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, m.CallCount())
	assert.Equal(t, 1, m.Pending())
}
