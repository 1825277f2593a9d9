package engine

import (
	"strconv"

	"github.com/holiman/uint256"

	"github.com/roach88/tokenledger/internal/ledger"
)

// args decodes the string arguments of a call. The first decoding failure is
// kept and reported once by err, so handlers read every field and check at
// the end.
type args struct {
	m     map[string]string
	first error
}

func newArgs(m map[string]string) *args {
	if m == nil {
		m = map[string]string{}
	}
	return &args{m: m}
}

func (a *args) fail(err error) {
	if a.first == nil {
		a.first = err
	}
}

func (a *args) raw(key string) (string, bool) {
	v, ok := a.m[key]
	if !ok {
		a.fail(ledger.Errorf(ledger.ErrCodeInvalidParameter, "missing argument %q", key))
	}
	return v, ok
}

// address reads an address. The empty string is accepted as the zero address
// so the ledger can report INVALID_ADDRESS itself.
func (a *args) address(key string) ledger.Address {
	return ledger.Address(a.str(key))
}

func (a *args) str(key string) string {
	v, _ := a.raw(key)
	return v
}

func (a *args) amount(key string) *uint256.Int {
	v, ok := a.raw(key)
	if !ok {
		return new(uint256.Int)
	}
	amt, err := ledger.ParseAmount(v)
	if err != nil {
		a.fail(err)
		return new(uint256.Int)
	}
	return amt
}

func (a *args) number(key string) uint64 {
	v, ok := a.raw(key)
	if !ok {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		a.fail(ledger.Errorf(ledger.ErrCodeInvalidParameter, "argument %q: %q is not an unsigned integer", key, v))
		return 0
	}
	return n
}

func (a *args) flag(key string) bool {
	v, ok := a.raw(key)
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		a.fail(ledger.Errorf(ledger.ErrCodeInvalidParameter, "argument %q: %q is not a boolean", key, v))
		return false
	}
	return b
}

// optionalFlag returns def when the key is absent.
func (a *args) optionalFlag(key string, def bool) bool {
	if _, ok := a.m[key]; !ok {
		return def
	}
	return a.flag(key)
}

func (a *args) err() error {
	return a.first
}
