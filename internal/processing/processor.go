package processing

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/sogos/pixelpipe/internal/domain/valueobject"
)

// Processor applies one image operation to its inputs using the imaging
// library. It is stateless and safe for concurrent use, so one instance can
// be shared by every worker thread.
type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

// Process applies the operation described by params to the inputs. The
// input slice must match the operation's declared arity; inputs arrive in
// parent declaration order, which for overlay means base first, then the
// layer drawn on top.
func (p *Processor) Process(params valueobject.JobType, inputs []image.Image) (image.Image, error) {
	if want, got := params.InputCount(), len(inputs); want != got {
		return nil, fmt.Errorf("job %s requires %d inputs, got %d", params.Kind, want, got)
	}

	switch params.Kind {
	case valueobject.JobKindResize:
		args := params.Resize
		return imaging.Resize(inputs[0], int(args.Width), int(args.Height), imaging.NearestNeighbor), nil

	case valueobject.JobKindCrop:
		args := params.Crop
		rect := image.Rect(int(args.X), int(args.Y), int(args.X+args.Width), int(args.Y+args.Height))
		return imaging.Crop(inputs[0], rect), nil

	case valueobject.JobKindBlur:
		return imaging.Blur(inputs[0], float64(params.Blur.Sigma)), nil

	case valueobject.JobKindBrightness:
		return imaging.AdjustBrightness(inputs[0], float64(params.Brightness.Delta)), nil

	case valueobject.JobKindOverlay:
		args := params.Overlay
		return imaging.Overlay(inputs[0], inputs[1], image.Pt(int(args.X), int(args.Y)), 1.0), nil

	case valueobject.JobKindInput:
		return nil, fmt.Errorf("input tasks carry artifacts and are never processed")

	default:
		return nil, fmt.Errorf("unknown job kind: %s", params.Kind)
	}
}
