package job

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var recognizedFormats = map[string]bool{
	"h264": true,
	"h265": true,
	"vp9":  true,
}

var recognizedResolutions = map[string]bool{
	"480p":  true,
	"720p":  true,
	"1080p": true,
	"4K":    true,
}

var bitratePattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?[kKmM]?$`)

// Params are the requested output properties for a transcoding job.
type Params struct {
	Format     string
	Resolution string
	Bitrate    string
}

// ParseParams builds Params from raw key/value options. Unrecognized option
// keys are rejected rather than ignored.
func ParseParams(options map[string]string) (Params, error) {
	p := Params{}
	for key, value := range options {
		switch key {
		case "format":
			p.Format = strings.TrimSpace(value)
		case "resolution":
			p.Resolution = strings.TrimSpace(value)
		case "bitrate":
			p.Bitrate = strings.TrimSpace(value)
		default:
			return Params{}, fmt.Errorf("%w: unrecognized option %q", ErrInvalidParams, key)
		}
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Validate checks the params against the fixed set of recognized options.
// Format is required; resolution and bitrate are optional hints.
func (p Params) Validate() error {
	if p.Format == "" {
		return fmt.Errorf("%w: format is required (one of %s)", ErrInvalidParams, keyList(recognizedFormats))
	}
	if !recognizedFormats[p.Format] {
		return fmt.Errorf("%w: unknown format %q (one of %s)", ErrInvalidParams, p.Format, keyList(recognizedFormats))
	}
	if p.Resolution != "" && !recognizedResolutions[p.Resolution] {
		return fmt.Errorf("%w: unknown resolution %q (one of %s)", ErrInvalidParams, p.Resolution, keyList(recognizedResolutions))
	}
	if p.Bitrate != "" && !bitratePattern.MatchString(p.Bitrate) {
		return fmt.Errorf("%w: malformed bitrate %q", ErrInvalidParams, p.Bitrate)
	}
	return nil
}

// OutputExt returns the container extension for the requested format.
func (p Params) OutputExt() string {
	if p.Format == "vp9" {
		return ".webm"
	}
	return ".mp4"
}

func keyList(set map[string]bool) string {
	keys := make([]string, 0, len(set))
	for key := range set {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}
