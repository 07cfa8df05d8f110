// Package capture records the exchanges between the zone codecs and a
// device channel and replays them later, so a report or action sequence
// taken on real hardware can be rerun without the device.
//
// A transcript is a CBOR stream: one Header followed by one Exchange per
// channel call.
package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

var (
	ErrTranscriptExhausted = errors.New("transcript exhausted")
	ErrTranscriptMismatch  = errors.New("request does not match transcript")
	ErrBadTranscript       = errors.New("malformed transcript")
)

// FormatVersion is written into every transcript header
const FormatVersion = 1

// Kind is the type of a recorded exchange
type Kind uint8

const (
	KindIoctl Kind = iota + 1
	KindRead
)

func (k Kind) String() string {
	switch k {
	case KindIoctl:
		return "ioctl"
	case KindRead:
		return "read"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Header describes the recorded device
type Header struct {
	Version          int       `cbor:"1,keyasint"`
	Device           string    `cbor:"2,keyasint,omitempty"`
	Size             int64     `cbor:"3,keyasint,omitempty"`
	LogicalBlockSize uint32    `cbor:"4,keyasint,omitempty"`
	Created          time.Time `cbor:"5,keyasint"`
}

// Exchange is one channel call and its outcome
type Exchange struct {
	Kind     Kind   `cbor:"1,keyasint"`
	Name     string `cbor:"2,keyasint,omitempty"`
	Op       uint32 `cbor:"3,keyasint,omitempty"`
	Dir      uint8  `cbor:"4,keyasint,omitempty"`
	Arg      uint64 `cbor:"5,keyasint,omitempty"`
	Offset   int64  `cbor:"6,keyasint,omitempty"`
	Request  []byte `cbor:"7,keyasint,omitempty"`
	Response []byte `cbor:"8,keyasint,omitempty"`
	Errno    uint32 `cbor:"9,keyasint,omitempty"`
	EOF      bool   `cbor:"10,keyasint,omitempty"`
}

// Transcript is a decoded capture
type Transcript struct {
	Header    Header
	Exchanges []Exchange
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("capture: cbor encoder mode: %v", err))
	}

	decOpts := cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("capture: cbor decoder mode: %v", err))
	}
}

// Encode writes t as a CBOR stream
func (t *Transcript) Encode(w io.Writer) error {
	enc := encMode.NewEncoder(w)
	if err := enc.Encode(t.Header); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	for i := range t.Exchanges {
		if err := enc.Encode(&t.Exchanges[i]); err != nil {
			return fmt.Errorf("encode exchange %d: %w", i, err)
		}
	}
	return nil
}

// Decode reads a transcript written by Encode
func Decode(r io.Reader) (*Transcript, error) {
	dec := decMode.NewDecoder(r)

	t := &Transcript{}
	if err := dec.Decode(&t.Header); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrBadTranscript, err)
	}
	if t.Header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: version %d", ErrBadTranscript, t.Header.Version)
	}

	for {
		var ex Exchange
		if err := dec.Decode(&ex); err != nil {
			if errors.Is(err, io.EOF) {
				return t, nil
			}
			return nil, fmt.Errorf("%w: exchange %d: %v", ErrBadTranscript, len(t.Exchanges), err)
		}
		if ex.Kind != KindIoctl && ex.Kind != KindRead {
			return nil, fmt.Errorf("%w: exchange %d has %s", ErrBadTranscript, len(t.Exchanges), ex.Kind)
		}
		t.Exchanges = append(t.Exchanges, ex)
	}
}
