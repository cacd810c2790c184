package poller

import "fmt"

// fakeClient is an in-memory modbusClient stand-in for unit tests; it
// never touches a real transport, mirroring how solarmanv5_test.go in the
// teacher exercises packet building without a live socket.
type fakeClient struct {
	input             map[uint16][]uint16
	holding           map[uint16][]uint16
	timeoutsRemaining map[uint16]int // addr -> number of timeouts to return before succeeding
	writes            []write
	writeErr          error
}

type write struct {
	address  uint16
	quantity uint16
	value    []byte
}

type timeoutError struct{ msg string }

func (e *timeoutError) Error() string   { return e.msg }
func (e *timeoutError) Timeout() bool   { return true }
func (e *timeoutError) Temporary() bool { return true }

func newFakeClient() *fakeClient {
	return &fakeClient{
		input:             map[uint16][]uint16{},
		holding:           map[uint16][]uint16{},
		timeoutsRemaining: map[uint16]int{},
	}
}

func (f *fakeClient) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	if n := f.timeoutsRemaining[address]; n > 0 {
		f.timeoutsRemaining[address] = n - 1
		return nil, &timeoutError{msg: "response timeout"}
	}
	words, ok := f.input[address]
	if !ok {
		return nil, fmt.Errorf("no such input register %d", address)
	}
	return bytesFromWords(words[:quantity]), nil
}

func (f *fakeClient) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	if n := f.timeoutsRemaining[address]; n > 0 {
		f.timeoutsRemaining[address] = n - 1
		return nil, &timeoutError{msg: "response timeout"}
	}
	words, ok := f.holding[address]
	if !ok {
		return nil, fmt.Errorf("no such holding register %d", address)
	}
	return bytesFromWords(words[:quantity]), nil
}

func (f *fakeClient) WriteMultipleRegisters(address, quantity uint16, value []byte) ([]byte, error) {
	if f.writeErr != nil {
		return nil, f.writeErr
	}
	f.writes = append(f.writes, write{address: address, quantity: quantity, value: value})
	f.holding[address] = wordsFromBytes(value)
	return nil, nil
}
