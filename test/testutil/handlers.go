package testutil

import (
	"encoding/json"
	"net/http"

	"github.com/TheMichaelB/vaultrest/internal/models"
	"github.com/TheMichaelB/vaultrest/internal/wire"
)

// EnrollDevice answers device enrollment with token and status OK.
func EnrollDevice(token string) Handler {
	return func(Request) Reply {
		rs := wire.DeviceResponse{EncryptedDeviceToken: []byte(token), Status: int32(models.DeviceOK)}
		return Reply{Payload: rs.Marshal()}
	}
}

// PreLoginOK answers pre-login with a single Master salt.
func PreLoginOK(iterations int32, salt []byte) Handler {
	return func(Request) Reply {
		rs := wire.PreLoginResponse{
			DeviceStatus: int32(models.DeviceOK),
			Salt:         []wire.Salt{{Name: "Master", Iterations: iterations, Salt: salt, Algorithm: 2}},
		}
		return Reply{Payload: rs.Marshal()}
	}
}

// RegionRedirect answers with a region_redirect error naming host.
func RegionRedirect(host string) Handler {
	return func(Request) Reply {
		return Reply{
			Status: http.StatusBadRequest,
			Error:  &models.APIError{Code: models.ErrCodeRegionRedirect, Message: "region redirect", RegionHost: host},
		}
	}
}

// CommandEcho answers a JSON command with {"result":"success","echo":<command>}.
func CommandEcho() Handler {
	return func(req Request) Reply {
		var cmd interface{}
		if err := json.Unmarshal(req.Payload, &cmd); err != nil {
			return Reply{Error: &models.APIError{Code: models.ErrCodeBadRequest, Message: err.Error()}}
		}
		body, _ := json.Marshal(map[string]interface{}{"result": "success", "echo": cmd})
		return Reply{Payload: body}
	}
}
