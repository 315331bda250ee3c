// Package wire encodes the protobuf messages exchanged with the vault service.
//
// Messages are written and read field by field with protowire so the package
// carries no generated code. Unknown fields are skipped on decode.
package wire

import (
	"errors"
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// ErrMalformed is returned when a message cannot be decoded.
var ErrMalformed = errors.New("wire: malformed message")

// APIRequest is the outer envelope posted to every endpoint.
type APIRequest struct {
	EncryptedTransmissionKey []byte // 1
	PublicKeyID              int32  // 2
	Locale                   string // 3
	EncryptedPayload         []byte // 4
}

func (m *APIRequest) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, m.EncryptedTransmissionKey)
	b = appendInt32(b, 2, m.PublicKeyID)
	b = appendString(b, 3, m.Locale)
	b = appendBytes(b, 4, m.EncryptedPayload)
	return b
}

func (m *APIRequest) Unmarshal(b []byte) error {
	*m = APIRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeBytes(b, &m.EncryptedTransmissionKey)
		case num == 2 && typ == protowire.VarintType:
			return consumeInt32(b, &m.PublicKeyID)
		case num == 3 && typ == protowire.BytesType:
			return consumeString(b, &m.Locale)
		case num == 4 && typ == protowire.BytesType:
			return consumeBytes(b, &m.EncryptedPayload)
		}
		return skip(num, typ, b)
	})
}

// APIRequestPayload is the plaintext sealed inside APIRequest.
type APIRequestPayload struct {
	Payload []byte // 1
}

func (m *APIRequestPayload) Marshal() []byte {
	return appendBytes(nil, 1, m.Payload)
}

func (m *APIRequestPayload) Unmarshal(b []byte) error {
	*m = APIRequestPayload{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if num == 1 && typ == protowire.BytesType {
			return consumeBytes(b, &m.Payload)
		}
		return skip(num, typ, b)
	})
}

// DeviceRequest asks the service to enroll a new device.
type DeviceRequest struct {
	ClientVersion string // 1
	DeviceName    string // 2
}

func (m *DeviceRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.ClientVersion)
	b = appendString(b, 2, m.DeviceName)
	return b
}

func (m *DeviceRequest) Unmarshal(b []byte) error {
	*m = DeviceRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeString(b, &m.ClientVersion)
		case num == 2 && typ == protowire.BytesType:
			return consumeString(b, &m.DeviceName)
		}
		return skip(num, typ, b)
	})
}

// DeviceResponse carries the enrolled device token.
type DeviceResponse struct {
	EncryptedDeviceToken []byte // 1
	Status               int32  // 2
}

func (m *DeviceResponse) Marshal() []byte {
	var b []byte
	b = appendBytes(b, 1, m.EncryptedDeviceToken)
	b = appendInt32(b, 2, m.Status)
	return b
}

func (m *DeviceResponse) Unmarshal(b []byte) error {
	*m = DeviceResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeBytes(b, &m.EncryptedDeviceToken)
		case num == 2 && typ == protowire.VarintType:
			return consumeInt32(b, &m.Status)
		}
		return skip(num, typ, b)
	})
}

// AuthRequest identifies the user and device at pre-login.
type AuthRequest struct {
	ClientVersion        string // 1
	Username             string // 2
	EncryptedDeviceToken []byte // 3
}

func (m *AuthRequest) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.ClientVersion)
	b = appendString(b, 2, m.Username)
	b = appendBytes(b, 3, m.EncryptedDeviceToken)
	return b
}

func (m *AuthRequest) Unmarshal(b []byte) error {
	*m = AuthRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeString(b, &m.ClientVersion)
		case num == 2 && typ == protowire.BytesType:
			return consumeString(b, &m.Username)
		case num == 3 && typ == protowire.BytesType:
			return consumeBytes(b, &m.EncryptedDeviceToken)
		}
		return skip(num, typ, b)
	})
}

// PreLoginRequest resolves a username to login parameters.
type PreLoginRequest struct {
	AuthRequest    AuthRequest // 1
	LoginType      int32       // 2
	TwoFactorToken []byte      // 3
}

func (m *PreLoginRequest) Marshal() []byte {
	var b []byte
	b = appendMessage(b, 1, m.AuthRequest.Marshal())
	b = appendInt32(b, 2, m.LoginType)
	b = appendBytes(b, 3, m.TwoFactorToken)
	return b
}

func (m *PreLoginRequest) Unmarshal(b []byte) error {
	*m = PreLoginRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeMessage(b, &m.AuthRequest)
		case num == 2 && typ == protowire.VarintType:
			return consumeInt32(b, &m.LoginType)
		case num == 3 && typ == protowire.BytesType:
			return consumeBytes(b, &m.TwoFactorToken)
		}
		return skip(num, typ, b)
	})
}

// Salt is one set of KDF parameters returned at pre-login.
type Salt struct {
	Iterations int32  // 1
	Salt       []byte // 2
	Algorithm  int32  // 3
	Name       string // 4
}

func (m *Salt) Marshal() []byte {
	var b []byte
	b = appendInt32(b, 1, m.Iterations)
	b = appendBytes(b, 2, m.Salt)
	b = appendInt32(b, 3, m.Algorithm)
	b = appendString(b, 4, m.Name)
	return b
}

func (m *Salt) Unmarshal(b []byte) error {
	*m = Salt{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			return consumeInt32(b, &m.Iterations)
		case num == 2 && typ == protowire.BytesType:
			return consumeBytes(b, &m.Salt)
		case num == 3 && typ == protowire.VarintType:
			return consumeInt32(b, &m.Algorithm)
		case num == 4 && typ == protowire.BytesType:
			return consumeString(b, &m.Name)
		}
		return skip(num, typ, b)
	})
}

// SSOUserInfo carries identity provider hints.
type SSOUserInfo struct {
	CompanyName   string // 1
	SSODomainName string // 4
	LoginURL      string // 5
	LogoutURL     string // 6
}

func (m *SSOUserInfo) Marshal() []byte {
	var b []byte
	b = appendString(b, 1, m.CompanyName)
	b = appendString(b, 4, m.SSODomainName)
	b = appendString(b, 5, m.LoginURL)
	b = appendString(b, 6, m.LogoutURL)
	return b
}

func (m *SSOUserInfo) Unmarshal(b []byte) error {
	*m = SSOUserInfo{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		if typ == protowire.BytesType {
			switch num {
			case 1:
				return consumeString(b, &m.CompanyName)
			case 4:
				return consumeString(b, &m.SSODomainName)
			case 5:
				return consumeString(b, &m.LoginURL)
			case 6:
				return consumeString(b, &m.LogoutURL)
			}
		}
		return skip(num, typ, b)
	})
}

// PreLoginResponse lists the login parameters for a user.
type PreLoginResponse struct {
	DeviceStatus int32        // 1
	Salt         []Salt       // 2
	SSOUserInfo  *SSOUserInfo // 4
}

func (m *PreLoginResponse) Marshal() []byte {
	var b []byte
	b = appendInt32(b, 1, m.DeviceStatus)
	for i := range m.Salt {
		b = appendMessage(b, 2, m.Salt[i].Marshal())
	}
	if m.SSOUserInfo != nil {
		b = appendMessage(b, 4, m.SSOUserInfo.Marshal())
	}
	return b
}

func (m *PreLoginResponse) Unmarshal(b []byte) error {
	*m = PreLoginResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			return consumeInt32(b, &m.DeviceStatus)
		case num == 2 && typ == protowire.BytesType:
			var s Salt
			n, err := consumeMessage(b, &s)
			if err == nil {
				m.Salt = append(m.Salt, s)
			}
			return n, err
		case num == 4 && typ == protowire.BytesType:
			m.SSOUserInfo = &SSOUserInfo{}
			return consumeMessage(b, m.SSOUserInfo)
		}
		return skip(num, typ, b)
	})
}

// Encoding helpers. Zero values are omitted, as proto3 does.

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendInt32(b []byte, num protowire.Number, v int32) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(int64(v)))
}

func appendMessage(b []byte, num protowire.Number, encoded []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, encoded)
}

type unmarshaler interface {
	Unmarshal([]byte) error
}

type fieldFunc func(num protowire.Number, typ protowire.Type, b []byte) (int, error)

func walk(b []byte, fn fieldFunc) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		b = b[m:]
	}
	return nil
}

func skip(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return 0, fmt.Errorf("%w: field %d: %v", ErrMalformed, num, protowire.ParseError(n))
	}
	return n, nil
}

func consumeBytes(b []byte, dst *[]byte) (int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	*dst = append([]byte(nil), v...)
	return n, nil
}

func consumeString(b []byte, dst *string) (int, error) {
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	*dst = v
	return n, nil
}

func consumeInt32(b []byte, dst *int32) (int, error) {
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	*dst = int32(v)
	return n, nil
}

func consumeMessage(b []byte, dst unmarshaler) (int, error) {
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, protowire.ParseError(n))
	}
	if err := dst.Unmarshal(v); err != nil {
		return 0, err
	}
	return n, nil
}
