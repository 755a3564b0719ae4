package mesh

import (
	"github.com/pion/sdp/v3"
	"github.com/pkg/errors"
)

var ErrBadSDP = errors.New("bad sdp")

// ValidateSDP parses a relayed session description so garbage never reaches a peer.
func ValidateSDP(raw string) error {
	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(raw)); err != nil {
		return errors.Wrap(ErrBadSDP, err.Error())
	}
	if len(desc.MediaDescriptions) == 0 {
		return errors.Wrap(ErrBadSDP, "no media sections")
	}
	return nil
}
