package rtpout

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/pion/sdp/v3"

	vs "github.com/thesyncim/vapoursynth"
)

// SessionOptions describes where a stream is sent.
type SessionOptions struct {
	Name        string
	Address     string // destination IP
	Port        int
	PayloadType uint8
	// Colorimetry defaults to BT709 for YUV. RGB streams omit it unless
	// set.
	Colorimetry string
}

// Describe returns an SDP session for a raw video stream of vi.
func Describe(vi vs.VideoInfo, opts SessionOptions) (*sdp.SessionDescription, error) {
	s, err := SamplingFor(vi.Format)
	if err != nil {
		return nil, err
	}
	if !vi.ConstantSize() || !vi.ConstantFramerate() {
		return nil, fmt.Errorf("%w: variable size or frame rate", ErrUnsupportedFormat)
	}
	if opts.Name == "" {
		opts.Name = "vapoursynth"
	}
	if opts.PayloadType == 0 {
		opts.PayloadType = DefaultPayloadType
	}
	addrType := "IP4"
	if ip := net.ParseIP(opts.Address); ip != nil && ip.To4() == nil {
		addrType = "IP6"
	}
	id := uint64(time.Now().Unix())

	pt := fmt.Sprint(opts.PayloadType)
	fmtp := []string{
		"sampling=" + s.Name,
		fmt.Sprintf("width=%d", vi.Width),
		fmt.Sprintf("height=%d", vi.Height),
		fmt.Sprintf("depth=%d", vi.Format.BitsPerSample),
		"exactframerate=" + frameRate(vi.FPSNum, vi.FPSDen),
	}
	if c := colorimetry(opts.Colorimetry, s); c != "" {
		fmtp = append(fmtp, "colorimetry="+c)
	}

	md := &sdp.MediaDescription{
		MediaName: sdp.MediaName{
			Media:   "video",
			Port:    sdp.RangedPort{Value: opts.Port},
			Protos:  []string{"RTP", "AVP"},
			Formats: []string{pt},
		},
	}
	md = md.WithValueAttribute("rtpmap", pt+" raw/90000").
		WithValueAttribute("fmtp", pt+" "+strings.Join(fmtp, "; "))

	return &sdp.SessionDescription{
		Version: 0,
		Origin: sdp.Origin{
			Username:       "-",
			SessionID:      id,
			SessionVersion: id,
			NetworkType:    "IN",
			AddressType:    addrType,
			UnicastAddress: opts.Address,
		},
		SessionName: sdp.SessionName(opts.Name),
		ConnectionInformation: &sdp.ConnectionInformation{
			NetworkType: "IN",
			AddressType: addrType,
			Address:     &sdp.Address{Address: opts.Address},
		},
		TimeDescriptions:  []sdp.TimeDescription{{Timing: sdp.Timing{}}},
		MediaDescriptions: []*sdp.MediaDescription{md},
	}, nil
}

// frameRate formats a rate as RFC 4175 exactframerate: an integer when
// exact, otherwise num/den.
func frameRate(num, den int64) string {
	if num%den == 0 {
		return fmt.Sprint(num / den)
	}
	return fmt.Sprintf("%d/%d", num, den)
}

func colorimetry(c string, s Sampling) string {
	switch {
	case c != "":
		return c
	case s == samplingRGB:
		return ""
	default:
		return "BT709"
	}
}
