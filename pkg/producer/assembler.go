package producer

import (
	"fmt"
	"log/slog"

	"gocv.io/x/gocv"
)

// Calibration is the per-sensor calibration pulled from a source for one
// poll. Lists may be shorter than the frame list, or empty.
type Calibration struct {
	Matrices   []gocv.Mat
	Extrinsics []gocv.Mat
	Intrinsics []gocv.Mat
}

// Assembler turns raw per-sensor frames into a Batch.
type Assembler struct {
	logger      *slog.Logger
	warnedGrey  bool
	conversions uint64
}

// NewAssembler creates an assembler that reports greyscale conversions to logger.
func NewAssembler(logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{logger: logger}
}

// Conversions returns how many greyscale frames were converted to BGR.
func (a *Assembler) Conversions() uint64 {
	return a.conversions
}

// Assemble builds one record per frame. Frames are moved into the batch:
// on success the batch owns them, on every other path they are closed.
//
// Only the primary frame is channel-normalized. A 1-channel primary is
// converted to BGR; any count other than 1 or 3 is an IntegrityError.
// An empty frame list, or an empty primary frame, yields a nil batch.
func (a *Assembler) Assemble(frames []gocv.Mat, calib Calibration, name string, number uint64, id string) (Batch, error) {
	if len(frames) == 0 {
		return nil, nil
	}
	if frames[0].Empty() {
		closeFrames(frames)
		return nil, nil
	}

	batch := make(Batch, len(frames))

	primary := &batch[0]
	primary.ID = id
	primary.Name = name
	primary.FrameNumber = number
	primary.Input = frames[0]
	calib.assign(primary, 0)

	switch ch := primary.Input.Channels(); ch {
	case 3:
	case 1:
		if err := a.greyToBGR(primary); err != nil {
			closeFrames(frames[1:])
			return nil, err
		}
	default:
		closeFrames(frames)
		return nil, &IntegrityError{
			Kind:    KindChannels,
			Message: fmt.Sprintf("input images must be 3-channel BGR, got %d channels", ch),
		}
	}
	primary.Output = primary.Input

	for i := 1; i < len(frames); i++ {
		rec := &batch[i]
		rec.ID = primary.ID
		rec.Name = primary.Name
		rec.FrameNumber = primary.FrameNumber
		rec.Input = frames[i]
		rec.Output = rec.Input
		calib.assign(rec, i)
	}

	return batch, nil
}

func (a *Assembler) greyToBGR(rec *Record) error {
	if !a.warnedGrey {
		a.logger.Warn("input images must be 3-channel BGR, converting grey image into BGR",
			"frame", rec.Name)
		a.warnedGrey = true
	}

	bgr := gocv.NewMat()
	gocv.CvtColor(rec.Input, &bgr, gocv.ColorGrayToBGR)
	rec.Input.Close()
	if bgr.Empty() {
		bgr.Close()
		return &IntegrityError{Kind: KindChannels, Message: "grey to BGR conversion produced an empty image"}
	}
	rec.Input = bgr
	a.conversions++
	return nil
}

func (c Calibration) assign(rec *Record, i int) {
	if len(c.Matrices) > i {
		rec.CameraMatrix = c.Matrices[i]
	}
	if len(c.Extrinsics) > i {
		rec.CameraExtrinsics = c.Extrinsics[i]
	}
	if len(c.Intrinsics) > i {
		rec.CameraIntrinsics = c.Intrinsics[i]
	}
}

func closeFrames(frames []gocv.Mat) {
	for i := range frames {
		frames[i].Close()
	}
}
