package lazyslice

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/lunfardo314/easyfl"
	"github.com/lunfardo314/txhandler"
)

// Array can be interpreted two ways:
// - as byte slice
// - as serialized append-only array of byte slices
// Parsing and serialization are lazy and cached.
// Serialization is optimized by analyzing maximum length of the data element
type Array struct {
	bytes          []byte
	parsed         [][]byte
	maxNumElements int
}

type lenPrefixType uint16

// prefix of the serialized array are two bytes interpreted as big-endian uint16.
// The highest 2 bits encode the size of the element length field (0, 1, 2 or 4 bytes),
// the rest is the number of elements in the array
const (
	DataLenBytes0  = uint16(0x00) << 14
	DataLenBytes8  = uint16(0x01) << 14
	DataLenBytes16 = uint16(0x02) << 14
	DataLenBytes32 = uint16(0x03) << 14

	DataLenMask  = uint16(0x03) << 14
	ArrayLenMask = ^DataLenMask
	MaxArrayLen  = int(ArrayLenMask) // 16383

	emptyArrayPrefix = lenPrefixType(0)
)

func (dl lenPrefixType) DataLenBytes() int {
	switch uint16(dl) & DataLenMask {
	case DataLenBytes0:
		return 0
	case DataLenBytes8:
		return 1
	case DataLenBytes16:
		return 2
	}
	return 4
}

func (dl lenPrefixType) NumElements() int {
	return int(uint16(dl) & ArrayLenMask)
}

func (dl lenPrefixType) Bytes() []byte {
	return txhandler.EncodeInteger(uint16(dl))
}

// ArrayFromBytes wraps the data without parsing it. Access panics if data is not a valid array
func ArrayFromBytes(data []byte, maxNumElements ...int) *Array {
	mx := MaxArrayLen
	if len(maxNumElements) > 0 {
		mx = maxNumElements[0]
	}
	return &Array{
		bytes:          data,
		maxNumElements: mx,
	}
}

// ParseArray parses data eagerly and returns error if it is not a valid array
func ParseArray(data []byte, maxNumElements ...int) (*Array, error) {
	ret := ArrayFromBytes(data, maxNumElements...)
	err := easyfl.CatchPanicOrError(func() error {
		var err1 error
		ret.parsed, err1 = parseArray(data, ret.maxNumElements)
		return err1
	})
	if err != nil {
		return nil, err
	}
	return ret, nil
}

func EmptyArray(maxNumElements ...int) *Array {
	return ArrayFromBytes(emptyArrayPrefix.Bytes(), maxNumElements...)
}

// MakeArray creates array from elements
func MakeArray(elems ...[]byte) *Array {
	ret := EmptyArray()
	for _, e := range elems {
		ret.Push(e)
	}
	return ret
}

func (a *Array) IsEmpty() bool {
	return a.NumElements() == 0
}

func (a *Array) Push(data []byte) int {
	a.ensureParsed()
	if len(a.parsed) >= a.maxNumElements {
		panic("Array.Push: too many elements")
	}
	a.parsed = append(a.parsed, data)
	a.bytes = nil
	return len(a.parsed) - 1
}

func (a *Array) ForEach(fun func(i int, data []byte) bool) {
	for i := 0; i < a.NumElements(); i++ {
		if !fun(i, a.At(i)) {
			break
		}
	}
}

func (a *Array) ensureParsed() {
	if a.parsed != nil {
		return
	}
	var err error
	a.parsed, err = parseArray(a.bytes, a.maxNumElements)
	easyfl.AssertNoError(err)
}

func (a *Array) ensureBytes() {
	if a.bytes != nil || a.parsed == nil {
		return
	}
	var buf bytes.Buffer
	easyfl.AssertNoError(encodeArray(a.parsed, &buf))
	a.bytes = buf.Bytes()
}

func (a *Array) At(idx int) []byte {
	a.ensureParsed()
	return a.parsed[idx]
}

func (a *Array) NumElements() int {
	a.ensureParsed()
	return len(a.parsed)
}

func (a *Array) Bytes() []byte {
	a.ensureBytes()
	return a.bytes
}

func calcLenPrefix(data [][]byte) (lenPrefixType, error) {
	if len(data) > MaxArrayLen {
		return 0, errors.New("too many elements")
	}
	var dl, t uint16
	for _, d := range data {
		switch {
		case uint64(len(d)) > math.MaxUint32:
			return 0, errors.New("data can't be longer that MaxUint32")
		case len(d) > math.MaxUint16:
			t = DataLenBytes32
		case len(d) > math.MaxUint8:
			t = DataLenBytes16
		case len(d) > 0:
			t = DataLenBytes8
		default:
			t = DataLenBytes0
		}
		if dl < t {
			dl = t
		}
	}
	return lenPrefixType(dl | uint16(len(data))), nil
}

func writeData(data [][]byte, numDataLenBytes int, w io.Writer) error {
	if numDataLenBytes == 0 {
		return nil // all empty
	}
	for _, d := range data {
		var err error
		switch numDataLenBytes {
		case 1:
			err = txhandler.WriteInteger(w, byte(len(d)))
		case 2:
			err = txhandler.WriteInteger(w, uint16(len(d)))
		case 4:
			err = txhandler.WriteInteger(w, uint32(len(d)))
		}
		if err != nil {
			return err
		}
		if _, err = w.Write(d); err != nil {
			return err
		}
	}
	return nil
}

// decodeElement cuts the element from the buffer without copying
func decodeElement(buf []byte, numDataLenBytes int) ([]byte, []byte, error) {
	if len(buf) < numDataLenBytes {
		return nil, nil, errors.New("unexpected EOF while reading element length")
	}
	var sz int
	switch numDataLenBytes {
	case 0:
		sz = 0
	case 1:
		sz = int(buf[0])
	case 2:
		sz = int(txhandler.DecodeInteger[uint16](buf[:2]))
	case 4:
		sz = int(txhandler.DecodeInteger[uint32](buf[:4]))
	default:
		return nil, nil, errors.New("wrong lenPrefixType value")
	}
	if len(buf) < numDataLenBytes+sz {
		return nil, nil, errors.New("unexpected EOF while reading element")
	}
	return buf[numDataLenBytes+sz:], buf[numDataLenBytes : numDataLenBytes+sz], nil
}

func decodeData(data []byte, numDataLenBytes int, n int) ([][]byte, error) {
	ret := make([][]byte, n)
	var err error
	for i := 0; i < n; i++ {
		data, ret[i], err = decodeElement(data, numDataLenBytes)
		if err != nil {
			return nil, err
		}
	}
	if len(data) != 0 {
		return nil, errors.New("serialization error: not all bytes were consumed")
	}
	return ret, nil
}

func encodeArray(data [][]byte, w io.Writer) error {
	prefix, err := calcLenPrefix(data)
	if err != nil {
		return err
	}
	if _, err = w.Write(prefix.Bytes()); err != nil {
		return err
	}
	return writeData(data, prefix.DataLenBytes(), w)
}

func parseArray(data []byte, maxNumElements int) ([][]byte, error) {
	if len(data) < 2 {
		return nil, errors.New("unexpected EOF")
	}
	prefix := lenPrefixType(txhandler.DecodeInteger[uint16](data[:2]))
	if prefix.NumElements() > maxNumElements {
		return nil, fmt.Errorf("parseArray: number of elements in the prefix %d is larger than maxNumElements %d",
			prefix.NumElements(), maxNumElements)
	}
	return decodeData(data[2:], prefix.DataLenBytes(), prefix.NumElements())
}
