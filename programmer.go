package mimasprog

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Listener receives the events of a programming run. Calls are made from the
// goroutine executing the run, one at a time and in order.
type Listener interface {
	InitProgress(max int)
	UpdateProgress(value int)
	LogMessage(text string)
	ErrorMessage(text string)
	UpdateTitle(text string)
	ProgrammingFinished()
}

// StateObserver may be implemented by a Listener to follow state transitions.
type StateObserver interface {
	StateChanged(State)
}

// State is a step of the programming sequence.
type State int

// Programming states in the order a successful run visits them.
const (
	StateIdle State = iota
	StateDetecting
	StateErasing
	StateProgramming
	StateVerifying
	StateResetting
	StateDone
	StateError
)

var stateNames = [...]string{"idle", "detecting", "erasing", "programming", "verifying", "resetting", "done", "error"}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

const resetDelay = 20 * time.Millisecond

// Job holds the parameters of one programming run.
type Job struct {
	Channel  Channel
	FileName string
	// Format selects how FileName is read. The zero value programs it byte for byte.
	Format   ImageFormat
	Listener Listener
	// If true, the flash is read back and compared after programming.
	Verify bool
}

// Programmer programs a Mimas V2 board. It owns the job's channel until Run
// returns and closes it on every exit path.
type Programmer struct {
	job      Job
	listener Listener
	bridge   *Bridge
	flash    *Flash
	state    State

	// Set by a failed read back; the run still completes.
	verifyErr error

	closeOnce sync.Once
}

// NewProgrammer creates a programmer for the given job.
func NewProgrammer(job Job) *Programmer {
	prog := new(Programmer)

	prog.job = job
	prog.listener = job.Listener
	if prog.listener == nil {
		prog.listener = nopListener{}
	}
	prog.bridge = NewBridge(NewTransport(job.Channel))
	prog.flash = NewFlash(prog.bridge)

	return prog
}

func (p *Programmer) setState(s State) {
	pkgLog.Debugf("state %v -> %v", p.state, s)
	p.state = s
	if o, ok := p.listener.(StateObserver); ok {
		o.StateChanged(s)
	}
}

// enterConfigMode holds the FPGA in configuration mode, opens SPI and reads the flash ID.
func (p *Programmer) enterConfigMode() (uint32, error) {
	if err := p.bridge.SetIODirection(PinPROGB, Output); err != nil {
		return 0, err
	}
	if err := p.bridge.SetIOValue(PinPROGB, 0); err != nil {
		return 0, err
	}
	if err := p.bridge.SPIOpen(); err != nil {
		return 0, err
	}
	return p.flash.ReadDeviceID()
}

// Detect reports whether a board with the supported flash part is attached.
// The FPGA is released from configuration mode afterwards. Any failure,
// including a garbled reply, is reported as false. The channel stays open.
func (p *Programmer) Detect() bool {
	id, err := p.enterConfigMode()
	if err != nil {
		pkgLog.Debugf("board detection failed: %v", err)
		return false
	}
	if err := p.bridge.SetIOValue(PinPROGB, 1); err != nil {
		pkgLog.Debugf("failed to release PROGB: %v", err)
		return false
	}
	pkgLog.Debugf("flash id %06X", id)
	return id == DeviceIDM25P16
}

// Start runs the job on a new goroutine. The returned channel receives the
// result of Run.
func (p *Programmer) Start() <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- p.Run()
	}()
	return done
}

// Run executes the whole programming sequence: detect, erase, program,
// optionally verify, then reset the board. On failure the listener is told
// that programming finished and then receives the error message.
// A verification mismatch is logged, does not stop the reset and is
// returned as a *VerificationError.
func (p *Programmer) Run() error {
	err := p.run()
	p.close()
	if err != nil {
		p.setState(StateError)
		p.listener.ProgrammingFinished()
		p.listener.ErrorMessage(err.Error())
		return err
	}
	p.listener.ProgrammingFinished()
	return p.verifyErr
}

func (p *Programmer) run() error {
	p.setState(StateDetecting)
	id, err := p.enterConfigMode()
	if err != nil {
		return err
	}
	if id != DeviceIDM25P16 {
		return &DetectionError{Expected: DeviceIDM25P16, Actual: id}
	}
	p.listener.LogMessage("Micron M25P16 SPI Flash detected")

	p.listener.LogMessage(fmt.Sprintf("Loading file %v...", p.job.FileName))
	image, err := LoadImage(p.job.FileName, p.job.Format)
	if err != nil {
		return errors.Wrap(err, "failed to load file")
	}
	if len(image) == 0 {
		return errors.Errorf("file %v is empty", p.job.FileName)
	}
	if len(image) > FlashSize {
		return errors.Errorf("file %v is %v bytes, flash holds %v", p.job.FileName, len(image), FlashSize)
	}

	p.setState(StateErasing)
	p.listener.UpdateTitle("Erasing flash sectors...")
	p.listener.InitProgress(int(EraseBound(uint32(len(image)))))
	if err := p.flash.SectorErase(uint32(len(image)), p.listener.UpdateProgress); err != nil {
		return err
	}

	p.setState(StateProgramming)
	p.listener.UpdateTitle("Programming FPGA Board ...")
	if err := p.program(image); err != nil {
		return err
	}

	if p.job.Verify {
		p.setState(StateVerifying)
		p.listener.UpdateTitle("Verifying flash contents...")
		p.listener.InitProgress(len(image))
		err := p.flash.Verify(image, p.listener.UpdateProgress)
		var mismatch *VerificationError
		switch {
		case errors.As(err, &mismatch):
			pkgLog.Warnf("%v", mismatch)
			p.verifyErr = mismatch
			p.listener.LogMessage("Flash verification failed...")
		case err != nil:
			return err
		default:
			p.listener.LogMessage("Flash verification successful...")
		}
	}

	p.setState(StateResetting)
	p.listener.UpdateTitle("Programming done!")
	p.listener.LogMessage("Resetting FPGA Board ...")
	if err := p.reset(); err != nil {
		return err
	}
	p.setState(StateDone)
	return nil
}

// program writes image page by page, waiting for each page to complete.
func (p *Programmer) program(image []byte) error {
	p.listener.InitProgress(len(image))
	for address := 0; address < len(image); address += PageSize {
		end := address + PageSize
		if end > len(image) {
			end = len(image)
		}
		if err := p.flash.PageProgram(image[address:end], uint32(address)); err != nil {
			return err
		}
		if err := p.flash.WaitReady(); err != nil {
			return errors.Wrapf(err, "program page at %X", address)
		}
		p.listener.UpdateProgress(end)
	}
	return nil
}

// reset hands the SPI bus back to the FPGA and releases it from configuration mode.
func (p *Programmer) reset() error {
	if err := p.bridge.SetIODirection(PinCS, Input); err != nil {
		return err
	}
	time.Sleep(resetDelay)
	if err := p.bridge.SetIOValue(PinPROGB, 1); err != nil {
		return err
	}
	time.Sleep(resetDelay)
	return nil
}

func (p *Programmer) close() {
	p.closeOnce.Do(func() {
		if err := p.bridge.Transport().Close(); err != nil {
			pkgLog.Warnf("%v", err)
		}
	})
}

type nopListener struct{}

func (nopListener) InitProgress(int)     {}
func (nopListener) UpdateProgress(int)   {}
func (nopListener) LogMessage(string)    {}
func (nopListener) ErrorMessage(string)  {}
func (nopListener) UpdateTitle(string)   {}
func (nopListener) ProgrammingFinished() {}
