package proto

import "encoding/json"

// ServerInfo is the JSON payload carried by an INFO server operation.
type ServerInfo struct {
	ID                 string   `json:"server_id"`
	Name               string   `json:"server_name"`
	Version            string   `json:"version"`
	GoVersion          string   `json:"go"`
	Host               string   `json:"host"`
	Port               uint16   `json:"port"`
	SupportsHeaders    bool     `json:"headers"`
	MaxPayload         int64    `json:"max_payload"`
	ProtocolVersion    int      `json:"proto"`
	ClientID           uint64   `json:"client_id,omitempty"`
	AuthRequired       bool     `json:"auth_required,omitempty"`
	TLSRequired        bool     `json:"tls_required,omitempty"`
	TLSVerify          bool     `json:"tls_verify,omitempty"`
	TLSAvailable       bool     `json:"tls_available,omitempty"`
	ConnectURLs        []string `json:"connect_urls,omitempty"`
	WebsocketConnectURLs []string `json:"websocket_connect_urls,omitempty"`
	LameDuckMode       bool     `json:"ldm,omitempty"`
	GitCommit          string   `json:"git_commit,omitempty"`
	SupportsJetstream  bool     `json:"jetstream,omitempty"`
	IP                 string   `json:"ip,omitempty"`
	ClientIP           string   `json:"client_ip,omitempty"`
	Nonce              string   `json:"nonce,omitempty"`
	ClusterName        string   `json:"cluster,omitempty"`
	Domain             string   `json:"domain,omitempty"`

	NonStandard NonStandardServerInfo `json:"-"`
}

// NonStandardServerInfo carries the non-standard zstd extension flag,
// advertised by the server under the "m4ss_zstd" JSON key.
type NonStandardServerInfo struct {
	Zstd bool
}

// UnmarshalJSON decodes ServerInfo, additionally pulling the flattened
// non-standard "m4ss_zstd" field into NonStandard.
func (s *ServerInfo) UnmarshalJSON(data []byte) error {
	type alias ServerInfo
	aux := struct {
		*alias
		Zstd bool `json:"m4ss_zstd"`
	}{alias: (*alias)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.NonStandard = NonStandardServerInfo{Zstd: aux.Zstd}
	return nil
}

// MarshalJSON encodes ServerInfo, flattening NonStandard.Zstd back into
// "m4ss_zstd".
func (s ServerInfo) MarshalJSON() ([]byte, error) {
	type alias ServerInfo
	aux := struct {
		alias
		Zstd bool `json:"m4ss_zstd,omitempty"`
	}{alias: alias(s), Zstd: s.NonStandard.Zstd}
	return json.Marshal(aux)
}
