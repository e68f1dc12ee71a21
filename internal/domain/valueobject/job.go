package valueobject

import (
	"encoding/json"
	"fmt"
)

// JobKind identifies one of the closed set of image operations.
type JobKind string

const (
	JobKindInput      JobKind = "input"
	JobKindResize     JobKind = "resize"
	JobKindCrop       JobKind = "crop"
	JobKindBlur       JobKind = "blur"
	JobKindBrightness JobKind = "brightness"
	JobKindOverlay    JobKind = "overlay"
)

func (k JobKind) String() string {
	return string(k)
}

func (k JobKind) IsValid() bool {
	switch k {
	case JobKindInput, JobKindResize, JobKindCrop, JobKindBlur, JobKindBrightness, JobKindOverlay:
		return true
	}
	return false
}

// InputCount returns the declared input arity of the operation.
func (k JobKind) InputCount() int {
	switch k {
	case JobKindInput:
		return 0
	case JobKindOverlay:
		return 2
	default:
		return 1
	}
}

func ParseJobKind(str string) (JobKind, error) {
	k := JobKind(str)
	if !k.IsValid() {
		return "", fmt.Errorf("invalid job kind: %s", str)
	}
	return k, nil
}

// ResizeParams scales the single input to the given dimensions.
type ResizeParams struct {
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// CropParams cuts a rectangle out of the single input.
type CropParams struct {
	X      uint32 `json:"x"`
	Y      uint32 `json:"y"`
	Width  uint32 `json:"width"`
	Height uint32 `json:"height"`
}

// BlurParams applies a gaussian blur to the single input.
type BlurParams struct {
	Sigma float32 `json:"sigma"`
}

// BrightnessParams shifts the brightness of the single input.
type BrightnessParams struct {
	Delta float32 `json:"delta"`
}

// OverlayParams draws the second input over the first at the given offset.
type OverlayParams struct {
	X uint32 `json:"x"`
	Y uint32 `json:"y"`
}

// JobType is the tagged union of every operation the pipeline understands.
// Exactly the variant named by Kind carries a non-nil parameter struct;
// Input carries none.
type JobType struct {
	Kind       JobKind
	Resize     *ResizeParams
	Crop       *CropParams
	Blur       *BlurParams
	Brightness *BrightnessParams
	Overlay    *OverlayParams
}

func NewInput() JobType {
	return JobType{Kind: JobKindInput}
}

func NewResize(width, height uint32) JobType {
	return JobType{Kind: JobKindResize, Resize: &ResizeParams{Width: width, Height: height}}
}

func NewCrop(x, y, width, height uint32) JobType {
	return JobType{Kind: JobKindCrop, Crop: &CropParams{X: x, Y: y, Width: width, Height: height}}
}

func NewBlur(sigma float32) JobType {
	return JobType{Kind: JobKindBlur, Blur: &BlurParams{Sigma: sigma}}
}

func NewBrightness(delta float32) JobType {
	return JobType{Kind: JobKindBrightness, Brightness: &BrightnessParams{Delta: delta}}
}

func NewOverlay(x, y uint32) JobType {
	return JobType{Kind: JobKindOverlay, Overlay: &OverlayParams{X: x, Y: y}}
}

// InputCount returns how many parent artifacts the operation consumes.
func (t JobType) InputCount() int {
	return t.Kind.InputCount()
}

func (t JobType) String() string {
	return t.Kind.String()
}

// IsValid checks that the Kind is known and that exactly the matching
// parameter variant is populated.
func (t JobType) IsValid() bool {
	if !t.Kind.IsValid() {
		return false
	}
	populated := 0
	if t.Resize != nil {
		populated++
	}
	if t.Crop != nil {
		populated++
	}
	if t.Blur != nil {
		populated++
	}
	if t.Brightness != nil {
		populated++
	}
	if t.Overlay != nil {
		populated++
	}
	switch t.Kind {
	case JobKindInput:
		return populated == 0
	case JobKindResize:
		return populated == 1 && t.Resize != nil
	case JobKindCrop:
		return populated == 1 && t.Crop != nil
	case JobKindBlur:
		return populated == 1 && t.Blur != nil
	case JobKindBrightness:
		return populated == 1 && t.Brightness != nil
	case JobKindOverlay:
		return populated == 1 && t.Overlay != nil
	}
	return false
}

// jobTypeWire is the persisted form: the kind as an external discriminator
// and the variant payload under "params".
type jobTypeWire struct {
	Type   JobKind         `json:"type"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (t JobType) MarshalJSON() ([]byte, error) {
	var payload any
	switch t.Kind {
	case JobKindInput:
		payload = nil
	case JobKindResize:
		payload = t.Resize
	case JobKindCrop:
		payload = t.Crop
	case JobKindBlur:
		payload = t.Blur
	case JobKindBrightness:
		payload = t.Brightness
	case JobKindOverlay:
		payload = t.Overlay
	default:
		return nil, fmt.Errorf("invalid job kind: %s", t.Kind)
	}

	wire := jobTypeWire{Type: t.Kind}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		wire.Params = raw
	}
	return json.Marshal(wire)
}

func (t *JobType) UnmarshalJSON(data []byte) error {
	var wire jobTypeWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	out := JobType{Kind: wire.Type}
	switch wire.Type {
	case JobKindInput:
	case JobKindResize:
		out.Resize = &ResizeParams{}
		if err := json.Unmarshal(wire.Params, out.Resize); err != nil {
			return err
		}
	case JobKindCrop:
		out.Crop = &CropParams{}
		if err := json.Unmarshal(wire.Params, out.Crop); err != nil {
			return err
		}
	case JobKindBlur:
		out.Blur = &BlurParams{}
		if err := json.Unmarshal(wire.Params, out.Blur); err != nil {
			return err
		}
	case JobKindBrightness:
		out.Brightness = &BrightnessParams{}
		if err := json.Unmarshal(wire.Params, out.Brightness); err != nil {
			return err
		}
	case JobKindOverlay:
		out.Overlay = &OverlayParams{}
		if err := json.Unmarshal(wire.Params, out.Overlay); err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid job kind: %s", wire.Type)
	}

	*t = out
	return nil
}

// Encode serializes the job type to its stable textual form for persistence.
func (t JobType) Encode() (string, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// ParseJobType decodes the persisted textual form.
func ParseJobType(str string) (JobType, error) {
	var t JobType
	if err := json.Unmarshal([]byte(str), &t); err != nil {
		return JobType{}, fmt.Errorf("invalid job type %q: %w", str, err)
	}
	return t, nil
}
