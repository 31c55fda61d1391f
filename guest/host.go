package guest

import (
	"context"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/lacewing/binding"
	"github.com/wippyai/lacewing/errors"
	"github.com/wippyai/lacewing/resource"
)

// Status is the result of a host call. Getters return a length instead on
// success.
type Status int32

const (
	StatusOK              Status = 0
	StatusInvalidHandle   Status = -1
	StatusAlreadyFinished Status = -2
	StatusOutOfBounds     Status = -3
	StatusFailed          Status = -4
)

func statusOf(err error) int32 {
	switch {
	case err == nil:
		return int32(StatusOK)
	case errors.HasKind(err, errors.KindAlreadyFinished):
		return int32(StatusAlreadyFinished)
	case errors.HasKind(err, errors.KindInvalidHandle):
		return int32(StatusInvalidHandle)
	case errors.HasKind(err, errors.KindOutOfBounds):
		return int32(StatusOutOfBounds)
	}
	return int32(StatusFailed)
}

// hostFunc is one export of the host module. Every export returns an i32.
type hostFunc struct {
	name   string
	params int
	call   func(h *Handlers, mem api.Memory, args []uint64) int32
}

var i32 = api.ValueTypeI32

func (r *Runtime) instantiateHost(ctx context.Context) error {
	builder := r.rt.NewHostModuleBuilder(HostModule)
	for _, f := range hostFuncs {
		params := make([]api.ValueType, f.params)
		for i := range params {
			params[i] = i32
		}
		builder.NewFunctionBuilder().
			WithGoModuleFunction(r.hostCall(f), params, []api.ValueType{i32}).
			Export(f.name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return errors.Wrap(errors.PhaseGuest, errors.KindInstantiation, err, "instantiate host module")
	}
	return nil
}

func (r *Runtime) hostCall(f hostFunc) api.GoModuleFunc {
	return func(_ context.Context, mod api.Module, stack []uint64) {
		h := r.instance(mod)
		if h == nil {
			stack[0] = api.EncodeI32(int32(StatusInvalidHandle))
			return
		}
		stack[0] = api.EncodeI32(f.call(h, mod.Memory(), stack[:f.params]))
	}
}

func readString(mem api.Memory, ptr, n uint64) (string, error) {
	offset, length := api.DecodeU32(ptr), api.DecodeU32(n)
	b, ok := mem.Read(offset, length)
	if !ok {
		return "", errors.OutOfBounds(errors.PhaseGuest, offset, length)
	}
	return string(b), nil
}

// copyOut writes at most capacity bytes of s at ptr and returns len(s).
func copyOut(mem api.Memory, s string, ptr, capacity uint64) int32 {
	n := api.DecodeU32(capacity)
	if uint32(len(s)) < n {
		n = uint32(len(s))
	}
	if !mem.Write(api.DecodeU32(ptr), []byte(s[:n])) {
		return statusOf(errors.OutOfBounds(errors.PhaseGuest, api.DecodeU32(ptr), n))
	}
	return int32(len(s))
}

// mutator adapts a request call taking one string argument.
func mutator(name string, fn func(r *binding.Request, s string) error) hostFunc {
	return hostFunc{name: name, params: 3, call: func(h *Handlers, mem api.Memory, args []uint64) int32 {
		req, ok := h.request(api.DecodeU32(args[0]))
		if !ok {
			return int32(StatusInvalidHandle)
		}
		s, err := readString(mem, args[1], args[2])
		if err != nil {
			return statusOf(err)
		}
		return statusOf(fn(req, s))
	}}
}

// getter adapts a request getter without arguments.
func getter(name string, fn func(r *binding.Request) string) hostFunc {
	return hostFunc{name: name, params: 3, call: func(h *Handlers, mem api.Memory, args []uint64) int32 {
		req, ok := h.request(api.DecodeU32(args[0]))
		if !ok {
			return int32(StatusInvalidHandle)
		}
		return copyOut(mem, fn(req), args[1], args[2])
	}}
}

// lookup adapts a request getter taking a name.
func lookup(name string, fn func(r *binding.Request, key string) string) hostFunc {
	return hostFunc{name: name, params: 5, call: func(h *Handlers, mem api.Memory, args []uint64) int32 {
		req, ok := h.request(api.DecodeU32(args[0]))
		if !ok {
			return int32(StatusInvalidHandle)
		}
		key, err := readString(mem, args[1], args[2])
		if err != nil {
			return statusOf(err)
		}
		return copyOut(mem, fn(req, key), args[3], args[4])
	}}
}

var hostFuncs = []hostFunc{
	mutator("request_write", (*binding.Request).Write),
	mutator("request_send_file", (*binding.Request).SendFile),
	mutator("request_mime_type", func(r *binding.Request, s string) error {
		return r.SetMimeType(s, "")
	}),
	{name: "request_finish", params: 1, call: func(h *Handlers, _ api.Memory, args []uint64) int32 {
		req, ok := h.request(api.DecodeU32(args[0]))
		if !ok {
			return int32(StatusInvalidHandle)
		}
		return statusOf(req.Finish())
	}},
	{name: "request_disconnect", params: 1, call: func(h *Handlers, _ api.Memory, args []uint64) int32 {
		req, ok := h.request(api.DecodeU32(args[0]))
		if !ok {
			return int32(StatusInvalidHandle)
		}
		return statusOf(req.Disconnect())
	}},
	{name: "request_status", params: 4, call: func(h *Handlers, mem api.Memory, args []uint64) int32 {
		req, ok := h.request(api.DecodeU32(args[0]))
		if !ok {
			return int32(StatusInvalidHandle)
		}
		msg, err := readString(mem, args[2], args[3])
		if err != nil {
			return statusOf(err)
		}
		return statusOf(req.SetStatus(int(api.DecodeI32(args[1])), msg))
	}},
	{name: "request_header", params: 5, call: func(h *Handlers, mem api.Memory, args []uint64) int32 {
		req, ok := h.request(api.DecodeU32(args[0]))
		if !ok {
			return int32(StatusInvalidHandle)
		}
		name, err := readString(mem, args[1], args[2])
		if err != nil {
			return statusOf(err)
		}
		value, err := readString(mem, args[3], args[4])
		if err != nil {
			return statusOf(err)
		}
		return statusOf(req.SetHeader(name, value))
	}},
	getter("request_url", (*binding.Request).URL),
	getter("request_method", (*binding.Request).Method),
	lookup("request_get", (*binding.Request).GET),
	lookup("request_post", (*binding.Request).POST),
	{name: "error_string", params: 3, call: func(h *Handlers, mem api.Memory, args []uint64) int32 {
		e, ok := h.errs.Get(resource.Handle(api.DecodeU32(args[0])))
		if !ok {
			return int32(StatusInvalidHandle)
		}
		return copyOut(mem, e.String(), args[1], args[2])
	}},
	{name: "log", params: 2, call: func(h *Handlers, mem api.Memory, args []uint64) int32 {
		msg, err := readString(mem, args[0], args[1])
		if err != nil {
			return statusOf(err)
		}
		h.log.Info(msg)
		return int32(StatusOK)
	}},
}
