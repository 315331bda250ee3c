package models

import "strings"

// DeviceStatus mirrors the server's device enrollment state.
type DeviceStatus int32

const (
	DeviceNeedApproval DeviceStatus = 0
	DeviceOK           DeviceStatus = 1
	DeviceDisabled     DeviceStatus = 2
)

func (s DeviceStatus) String() string {
	switch s {
	case DeviceNeedApproval:
		return "NEED_APPROVAL"
	case DeviceOK:
		return "OK"
	case DeviceDisabled:
		return "DEVICE_DISABLED"
	default:
		return "UNKNOWN"
	}
}

// LoginType selects the authentication flow requested at pre-login.
type LoginType int32

const (
	LoginNormal    LoginType = 0
	LoginSSO       LoginType = 1
	LoginBio       LoginType = 2
	LoginAlternate LoginType = 3
	LoginOffline   LoginType = 4
)

func (t LoginType) String() string {
	switch t {
	case LoginNormal:
		return "NORMAL"
	case LoginSSO:
		return "SSO"
	case LoginBio:
		return "BIO"
	case LoginAlternate:
		return "ALTERNATE"
	case LoginOffline:
		return "OFFLINE"
	default:
		return "UNKNOWN"
	}
}

// Salt holds one set of key derivation parameters.
type Salt struct {
	Name       string `json:"name"`
	Iterations int32  `json:"iterations"`
	Salt       []byte `json:"salt"`
	Algorithm  int32  `json:"algorithm"`
}

// SSOInfo carries identity provider hints for SSO-enabled accounts.
type SSOInfo struct {
	CompanyName string `json:"company_name"`
	DomainName  string `json:"domain_name"`
	LoginURL    string `json:"login_url"`
	LogoutURL   string `json:"logout_url"`
}

// LoginParameters is the result of a successful pre-login handshake.
type LoginParameters struct {
	DeviceStatus DeviceStatus `json:"device_status"`
	LoginMethod  LoginType    `json:"login_method"`
	Salts        []Salt       `json:"salts"`
	SSO          *SSOInfo     `json:"sso,omitempty"`
}

// PrimarySalt returns the salt named "Master", or the first one.
func (p *LoginParameters) PrimarySalt() (Salt, bool) {
	for _, s := range p.Salts {
		if strings.EqualFold(s.Name, "master") {
			return s, true
		}
	}
	if len(p.Salts) > 0 {
		return p.Salts[0], true
	}
	return Salt{}, false
}
