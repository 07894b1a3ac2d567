package proto

import "encoding/json"

// Connect is the JSON payload carried by the CONNECT client operation.
type Connect struct {
	Verbose          bool   `json:"verbose"`
	Pedantic         bool   `json:"pedantic"`
	TLSRequired      bool   `json:"tls_required,omitempty"`
	AuthToken        string `json:"auth_token,omitempty"`
	Username         string `json:"user,omitempty"`
	Password         string `json:"pass,omitempty"`
	Name             string `json:"name,omitempty"`
	Lang             string `json:"lang"`
	Version          string `json:"version"`
	Protocol         int    `json:"protocol"`
	Echo             bool   `json:"echo"`
	SupportsNoResponders bool `json:"no_responders,omitempty"`
	SupportsHeaders  bool   `json:"headers,omitempty"`
	JWT              string `json:"jwt,omitempty"`
	NKey             string `json:"nkey,omitempty"`
	Signature        string `json:"sig,omitempty"`

	NonStandard NonStandardConnect `json:"-"`
}

// NonStandardConnect carries the non-standard zstd opt-in flag.
type NonStandardConnect struct {
	Zstd bool
}

// MarshalJSON encodes Connect, flattening NonStandard.Zstd into
// "m4ss_zstd" only when set.
func (c Connect) MarshalJSON() ([]byte, error) {
	type alias Connect
	aux := struct {
		alias
		Zstd bool `json:"m4ss_zstd,omitempty"`
	}{alias: alias(c), Zstd: c.NonStandard.Zstd}
	return json.Marshal(aux)
}
