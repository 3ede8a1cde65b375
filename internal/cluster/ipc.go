package cluster

import "encoding/json"

// ipcMessage is the small control envelope carried over the SOCK_SEQPACKET
// socketpair established at fork. Exactly two shapes are ever sent: master
// -> worker carries Type == ipcTypeBalancing with a socket attached
// out-of-band via SCM_RIGHTS; worker -> master carries Type == ipcTypeClose
// with no attachment. SOCK_SEQPACKET preserves message boundaries, so no
// additional length-prefix framing is required: one sendmsg/recvmsg call is
// exactly one control message.
type ipcMessage struct {
	Type string `json:"type"`
}

const (
	ipcTypeBalancing = "balancing"
	ipcTypeClose     = "close"
)

func (m ipcMessage) marshal() ([]byte, error) {
	return json.Marshal(m)
}

func (m *ipcMessage) unmarshal(b []byte) error {
	return json.Unmarshal(b, m)
}
