package cipher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/robertkrimen/otto"
)

const (
	decipherFuncName = "decipher"
	ncodeFuncName    = "ncode"
)

// jsRunTimeout bounds every call into a player script, in either runtime.
var jsRunTimeout = 5 * time.Second

var (
	errOttoHalt = errors.New("otto: execution interrupted")
	errGojaHalt = errors.New("goja: execution interrupted")
)

// player holds one downloaded player script and the transforms derived
// from it. Derivation is lazy and happens at most once.
type player struct {
	url  string
	body []byte

	opsOnce sync.Once
	ops     []op
	opsErr  error

	nOnce  sync.Once
	nMu    sync.Mutex
	nVM    *goja.Runtime
	nFunc  goja.Callable
	nErr   error
	nCache map[string]string

	ottoOnce sync.Once
	ottoMu   sync.Mutex
	ottoVM   *otto.Otto
	ottoErr  error
}

func newPlayer(url string, body []byte) *player {
	return &player{url: url, body: body, nCache: make(map[string]string)}
}

// signature deciphers s: regex-derived ops first, then the script's
// decipher global under otto.
func (p *player) signature(s string) (string, error) {
	p.opsOnce.Do(func() {
		p.ops, p.opsErr = parseSignatureOps(p.body)
	})
	if p.opsErr == nil {
		return applyOps(p.ops, s), nil
	}

	out, err := p.callOtto(decipherFuncName, s)
	if err != nil {
		return "", NewError(ErrCodeSignatureDecipher, "all signature methods failed", map[string]any{
			"regex": p.opsErr.Error(),
			"otto":  err.Error(),
		})
	}
	return out, nil
}

// n transforms the throttling parameter: extracted n-function under goja,
// then an ncode global under otto.
func (p *player) n(nval string) (string, error) {
	p.nOnce.Do(p.compileN)

	p.nMu.Lock()
	if out, ok := p.nCache[nval]; ok {
		p.nMu.Unlock()
		return out, nil
	}
	var (
		out string
		err error
	)
	if p.nFunc != nil {
		out, err = p.callN(nval)
	} else {
		err = p.nErr
	}
	p.nMu.Unlock()

	if err != nil {
		var ottoErr error
		if out, ottoErr = p.callOtto(ncodeFuncName, nval); ottoErr != nil {
			return nval, NewError(ErrCodeNTransform, "n transform unavailable", map[string]any{
				"goja": err.Error(),
				"otto": ottoErr.Error(),
			})
		}
	}

	p.nMu.Lock()
	p.nCache[nval] = out
	p.nMu.Unlock()
	return out, nil
}

func (p *player) compileN() {
	src, err := findNFunction(p.body)
	if err != nil {
		p.nErr = err
		return
	}
	vm := goja.New()
	const fnName = "__ytstreamsN"
	if _, err := vm.RunString(fnName + "=" + src); err != nil {
		p.nErr = NewError(ErrCodeJSParsingFailed, "n-function does not compile", err.Error())
		return
	}
	fn, ok := goja.AssertFunction(vm.Get(fnName))
	if !ok {
		p.nErr = NewError(ErrCodeJSParsingFailed, "n-function is not callable")
		return
	}
	p.nVM, p.nFunc = vm, fn
}

// callN must be called with p.nMu held. An n-function that runs past
// jsRunTimeout is interrupted and not called again for this player.
func (p *player) callN(nval string) (string, error) {
	fired := make(chan struct{})
	timer := time.AfterFunc(jsRunTimeout, func() {
		defer close(fired)
		p.nVM.Interrupt(errGojaHalt)
	})
	v, err := p.nFunc(goja.Undefined(), p.nVM.ToValue(nval))
	if !timer.Stop() {
		<-fired
	}
	p.nVM.ClearInterrupt()

	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			p.nFunc = nil
			p.nErr = NewError(ErrCodeJSExecutionFailed, "n-function timed out", jsRunTimeout.String())
			return "", p.nErr
		}
		return "", NewError(ErrCodeJSExecutionFailed, "n-function threw", err.Error())
	}
	out := v.String()
	if out == "" || out == nval || strings.HasPrefix(out, "enhanced_except_") {
		return "", NewError(ErrCodeNTransform, "n-function returned an unusable value")
	}
	return out, nil
}

// callOtto runs the whole script once in otto and calls the global fn.
func (p *player) callOtto(fn, arg string) (result string, err error) {
	p.ottoOnce.Do(func() {
		vm := otto.New()
		if _, err := runOtto(vm, func() (otto.Value, error) { return vm.Run(string(p.body)) }); err != nil {
			p.ottoErr = NewError(ErrCodeJSExecutionFailed, "failed to run player script in otto", err.Error())
			return
		}
		p.ottoVM = vm
	})
	if p.ottoErr != nil {
		return "", p.ottoErr
	}

	p.ottoMu.Lock()
	defer p.ottoMu.Unlock()

	f, err := p.ottoVM.Get(fn)
	if err != nil || !f.IsFunction() {
		return "", NewError(ErrCodeJSExecutionFailed, fmt.Sprintf("global %s is not defined", fn))
	}
	value, err := runOtto(p.ottoVM, func() (otto.Value, error) { return p.ottoVM.Call(fn, nil, arg) })
	if err != nil {
		return "", NewError(ErrCodeJSExecutionFailed, fmt.Sprintf("failed to call %s", fn), err.Error())
	}
	out, err := value.ToString()
	if err != nil {
		return "", NewError(ErrCodeJSExecutionFailed, fmt.Sprintf("%s did not return a string", fn), err.Error())
	}
	return out, nil
}

// runOtto executes run with an interrupt after jsRunTimeout.
func runOtto(vm *otto.Otto, run func() (otto.Value, error)) (value otto.Value, err error) {
	vm.Interrupt = make(chan func(), 1)
	timer := time.AfterFunc(jsRunTimeout, func() {
		vm.Interrupt <- func() { panic(errOttoHalt) }
	})
	defer func() {
		timer.Stop()
		if r := recover(); r != nil {
			if r == errOttoHalt {
				err = errOttoHalt
				return
			}
			panic(r)
		}
	}()
	return run()
}
